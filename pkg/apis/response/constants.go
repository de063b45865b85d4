package response

type ErrCode int

const (
	_                          ErrCode = 10000 + iota
	ErrCodeMalformedJSON               // 10001
	ErrCodeRequestBody                 // 10002
	ErrCodeResourceExists              // 10003
	ErrCodeResourceNotFound            // 10004
	ErrCodeLegalActionNotFound         // 10005
	ErrCodeDeviceNotFound              // 10006
	ErrCodeDeviceNotConnect            // 10007
	ErrCodeDeviceOperator              // 10008
	ErrCodeTooManyPatchOps             // 10009
	ErrCodeMeterModel                  // 10010
	ErrCodeMeterAddress                // 10011
	ErrCodePollInterval                // 10012
)

// !!! IMPORTANT PLEASE READ FIRST !!!
// You SHOULD add new code at the end, and append comment of number
// Meanwhile, the corresponding error message SHOULD be appended in response.errors
// The order MUST be consistent between them
