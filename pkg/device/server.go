package device

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	jsonpatch "github.com/evanphx/json-patch"
	"github.com/gin-gonic/gin"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/klog/v2"

	"pzemgateway/pkg/apis"
	"pzemgateway/pkg/apis/response"
	deviceruntime "pzemgateway/pkg/device/runtime"
	"pzemgateway/pkg/generic"
	pzemruntime "pzemgateway/pkg/pzem/runtime"
	"pzemgateway/pkg/runtime"
	v1 "pzemgateway/pkg/v1"
)

func InstallHandler(group *gin.RouterGroup, mgr *Manager) {
	group.POST("/meters", createDevice(mgr))
	group.DELETE("/meters/:id", deleteDevice(mgr))
	group.GET("/meters", listDevices(mgr))
	group.GET("/meters/:id", getDeviceById(mgr))
	group.GET("/meters/:id/metrics", getDeviceMetricsById(mgr))
	group.PATCH("/meters/:id", patchDeviceById(mgr))
	group.PUT("/meters/:id/control", controlDeviceById(mgr))
}

func createDevice(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		bodyBytes, err := io.ReadAll(c.Request.Body)
		if err != nil {
			klog.V(2).InfoS("Failed to get request body", "err", err)
			c.JSON(http.StatusBadRequest, response.NewMultiError(response.ErrMalformedJSON))
			return
		}

		var target struct {
			DeviceType string `json:"deviceType"`
		}
		err = json.NewDecoder(bytes.NewReader(bodyBytes)).Decode(&target)
		if err != nil {
			klog.V(2).InfoS("Failed to parse device type", "err", err)
			c.JSON(http.StatusBadRequest, response.NewMultiError(response.ErrRequestBody))
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

		newObject, ok := generic.DeviceTypeMap[target.DeviceType]
		if !ok {
			c.JSON(http.StatusBadRequest, response.NewMultiError(deviceruntime.ErrDeviceType))
			return
		}
		object := newObject()
		if err := c.ShouldBindJSON(object); err != nil {
			klog.V(2).InfoS("Failed to parse device", "err", err)
			c.JSON(http.StatusBadRequest, response.NewMultiError(response.ErrMalformedJSON))
			return
		}
		d, err := mgr.CreateDevice(object)

		if err != nil {
			c.JSON(http.StatusBadRequest, response.NewMultiError(err))
			return
		}

		c.Header(apis.ETag, fmt.Sprintf("%s", d.GetVersion()))
		c.Header(apis.Location, fmt.Sprintf("https://%s%s/%s", c.Request.Host, c.Request.RequestURI, d.GetID()))
		c.JSON(http.StatusCreated, d)
	}
}

func deleteDevice(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		eTag := c.GetHeader(apis.IfMatch)
		if len(eTag) == 0 {
			c.Status(http.StatusPreconditionRequired)
			return
		}
		device, err := mgr.DeleteDevice(id, eTag)
		if err != nil {
			if os.IsNotExist(err) {
				c.Status(http.StatusNotFound)
			} else if errors.Is(err, apis.ErrMismatch) {
				c.Status(http.StatusPreconditionFailed)
			} else {
				c.JSON(http.StatusBadRequest, response.NewMultiError(err))
			}
			return
		}
		c.JSON(http.StatusOK, device)
	}
}

func listDevices(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		query := c.Request.URL.Query()
		exploded := false
		filter := runtime.DeviceFilter{}
		if len(query) > 0 {
			v := query.Get(apis.Filter)
			if len(v) > 0 {
				if err := json.Unmarshal([]byte(v), &filter); err != nil {
					c.JSON(http.StatusBadRequest, response.NewMultiError(response.ErrMalformedJSON))
					return
				}
			}
			exploded, _ = strconv.ParseBool(query.Get("exploded"))
		}
		rds, _ := mgr.ListDevices(&filter, exploded)

		c.JSON(http.StatusOK, &runtime.ResponseModel{Devices: rds})
	}
}

func getDeviceById(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		query := c.Request.URL.Query()
		exploded := false
		if len(query) > 0 {
			exploded, _ = strconv.ParseBool(query.Get("exploded"))
		}
		rd, err := mgr.GetDeviceById(id, exploded)
		if err != nil {
			if os.IsNotExist(err) {
				c.Status(http.StatusNotFound)
			} else {
				c.Status(http.StatusInternalServerError)
			}
			return
		}

		c.Header(apis.ETag, fmt.Sprintf("%s", rd.GetVersion()))
		c.JSON(http.StatusOK, rd)
	}
}

// meterMetricsModel is the live snapshot attached to the metrics endpoint.
type meterMetricsModel struct {
	Model     string              `json:"model"`
	SlaveAddr uint8               `json:"slaveAddr"`
	LastError string              `json:"lastError"`
	Stale     bool                `json:"stale"`
	AgeMillis int64               `json:"ageMillis"`
	Metrics   pzemruntime.Metrics `json:"metrics"`
}

func getDeviceMetricsById(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		state, err := mgr.MeterState(id)
		if err != nil {
			if os.IsNotExist(err) {
				c.Status(http.StatusNotFound)
			} else {
				c.JSON(http.StatusBadRequest, response.NewMultiError(err))
			}
			return
		}

		c.JSON(http.StatusOK, &meterMetricsModel{
			Model:     pzemruntime.ModelToString[state.Model()],
			SlaveAddr: state.Addr(),
			LastError: pzemruntime.ErrCodeToString[state.LastError()],
			Stale:     state.DataStale(),
			AgeMillis: state.DataAge().Milliseconds(),
			Metrics:   state.Metrics(),
		})
	}
}

func patchDeviceById(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer c.Request.Body.Close()

		id := c.Param("id")
		eTag := c.GetHeader(apis.IfMatch)
		if len(eTag) == 0 {
			c.Status(http.StatusPreconditionRequired)
			return
		}

		patchType := c.ContentType()
		if !patchTypes.Has(patchType) {
			c.Status(http.StatusUnsupportedMediaType)
			return
		}

		patchBytes, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, response.NewMultiError(response.ErrRequestBody))
			return
		}

		device, err := mgr.GetDeviceById(id, true)
		if err != nil {
			c.Status(http.StatusNotFound)
			return
		}

		versioned := &v1.PzemDevice{
			DeviceMeta: v1.DeviceMeta{Name: device.GetName(), DeviceType: device.GetDeviceType()},
			Model:      device.GetModel(),
		}
		if md, ok := device.(*deviceruntime.MeterDevice); ok {
			versioned.SlaveAddr = md.SlaveAddr
			versioned.PollIntervalMillis = md.PollIntervalMillis
			versioned.Bus = md.Bus
		}
		versionedJS, err := json.Marshal(versioned)
		if err != nil {
			c.JSON(http.StatusInternalServerError, response.NewMultiError(apis.ErrInternal))
			return
		}

		patchedJS, err := applyJSPatch(types.PatchType(patchType), patchBytes, versionedJS)
		if err != nil {
			c.JSON(http.StatusBadRequest, response.NewMultiError(err))
			return
		}

		patched := &v1.PzemDevice{}
		if err := json.Unmarshal(patchedJS, patched); err != nil {
			c.JSON(http.StatusBadRequest, response.NewMultiError(response.ErrMalformedJSON))
			return
		}

		updated, err := mgr.UpdateDeviceById(id, eTag, patched)
		if err != nil {
			if errors.Is(err, apis.ErrMismatch) {
				c.Status(http.StatusPreconditionFailed)
			} else {
				c.JSON(http.StatusBadRequest, response.NewMultiError(err))
			}
			return
		}

		c.Header(apis.ETag, fmt.Sprintf("%s", updated.GetVersion()))
		c.JSON(http.StatusOK, updated)
	}
}

func controlDeviceById(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer c.Request.Body.Close()

		id := c.Param("id")
		var actions []*v1.Action
		if err := json.NewDecoder(c.Request.Body).Decode(&actions); err != nil {
			klog.V(3).InfoS("Failed to parse action", "err", err)
			c.JSON(http.StatusBadRequest, response.NewMultiError(response.ErrMalformedJSON))
			return
		}

		if err := mgr.DeliverAction(id, actions); err != nil {
			c.JSON(http.StatusBadRequest, err)
			return
		}

		c.Status(http.StatusAccepted)
	}
}

func applyJSPatch(patchType types.PatchType, patchBytes, versionedJS []byte) (patchedJS []byte, err error) {
	switch patchType {
	case types.JSONPatchType:
		patchObj, err := jsonpatch.DecodePatch(patchBytes)
		if err != nil {
			return nil, response.ErrMalformedJSON
		}
		if len(patchObj) > maxJSONPatchOperations {
			klog.V(3).InfoS("Too many json patch operations", "count", len(patchObj))
			return nil, response.ErrTooManyJsonPatchOperations(maxJSONPatchOperations)
		}
		patchedJS, err := patchObj.Apply(versionedJS)
		if err != nil {
			klog.V(3).InfoS("Failed to apply json patch", "err", err)
			return nil, response.ErrMalformedJSON
		}
		return patchedJS, nil
	case types.MergePatchType:
		patchedJS, err = jsonpatch.MergePatch(versionedJS, patchBytes)
		if err != nil {
			klog.V(3).InfoS("Failed to apply json merge patch", "err", err)
			return nil, response.ErrMalformedJSON
		}
		return patchedJS, err
	default:
		// only here as a safety net - gin filters content-type
		return nil, fmt.Errorf("unknown Content-Type header for patch: %v", patchType)
	}
}
