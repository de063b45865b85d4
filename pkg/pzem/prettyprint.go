package pzem

import (
	"fmt"
	"strings"

	"pzemgateway/pkg/modbus"
	pzemruntime "pzemgateway/pkg/pzem/runtime"
)

// PrettyPrint renders a reply frame as human readable text, parsing it into
// a scratch state first. Debug aid for the ctl tool, nothing normative.
func PrettyPrint(m *modbus.RxFrame, model pzemruntime.Model) string {
	var b strings.Builder

	fmt.Fprintf(&b, "=== PZEM DATA ===\n")
	switch model {
	case pzemruntime.ModelAC3:
		prettyAC(&b, m)
	case pzemruntime.ModelDC:
		prettyDC(&b, m)
	default:
		fmt.Fprintf(&b, "Unknown meter model\n")
	}
	return b.String()
}

func prettyAC(b *strings.Builder, m *modbus.RxFrame) {
	pz := pzemruntime.NewACState(m.Addr())
	pz.ParseRx(m, false)

	switch m.Cmd() {
	case modbus.ReadInputRegister:
		data := pz.Snapshot()
		fmt.Fprintf(b, "Packet with metrics data\n")
		fmt.Fprintf(b, "Voltage:\t%d dV\t~ %.1f volts\n", data.Voltage, data.AsFloat(pzemruntime.Voltage))
		fmt.Fprintf(b, "Current:\t%d mA\t~ %.3f amperes\n", data.Current, data.AsFloat(pzemruntime.Current))
		fmt.Fprintf(b, "Power:\t\t%d dW\t~ %.1f watts\n", data.Power, data.AsFloat(pzemruntime.Power))
		fmt.Fprintf(b, "Energy:\t\t%d Wh\t~ %.3f kWatt*hours\n", data.Energy, data.AsFloat(pzemruntime.Energy)/1000)
		fmt.Fprintf(b, "Frequency:\t%d dHz\t~ %.1f Herz\n", data.Frequency, data.AsFloat(pzemruntime.Frequency))
		fmt.Fprintf(b, "Power factor:\t%d/100\t~ %.2f\n", data.PowerFactor, data.AsFloat(pzemruntime.PowerFactor))
		fmt.Fprintf(b, "Power alarm:\t%s\n", yesNo(pz.AlarmActive()))
	case modbus.ReadHoldingRegister:
		fmt.Fprintf(b, "Configured MODBUS address:\t%d\n", pz.Addr())
		fmt.Fprintf(b, "Configured alarm threshold:\t%d\n", pz.AlarmThreshold())
	case modbus.WriteSingleRegister:
		if m.Len() > 3 && uint16(m.Raw[3]) == pzemruntime.ACHoldingAddr {
			fmt.Fprintf(b, "Device MODBUS address changed to:\t%d\n", pz.Addr())
		} else if m.Len() > 3 && uint16(m.Raw[3]) == pzemruntime.ACHoldingAlarmThr {
			fmt.Fprintf(b, "Alarm threshold value changed to:\t%d\n", pz.AlarmThreshold())
		} else {
			fmt.Fprintf(b, "Unknown write echo\n")
		}
	case modbus.ResetEnergy:
		fmt.Fprintf(b, "Energy counter reset!\n")
	default:
		if m.IsError() {
			fmt.Fprintf(b, "Error reply, exception code:\t%d\n", m.ExceptionCode())
		} else {
			fmt.Fprintf(b, "Unrecognized reply\n")
		}
	}
}

func prettyDC(b *strings.Builder, m *modbus.RxFrame) {
	pz := pzemruntime.NewDCState(m.Addr())
	pz.ParseRx(m, false)

	switch m.Cmd() {
	case modbus.ReadInputRegister:
		data := pz.Snapshot()
		fmt.Fprintf(b, "Packet with metrics data\n")
		fmt.Fprintf(b, "Voltage:\t%d cV\t~ %.2f volts\n", data.Voltage, data.AsFloat(pzemruntime.Voltage))
		fmt.Fprintf(b, "Current:\t%d cA\t~ %.2f amperes\n", data.Current, data.AsFloat(pzemruntime.Current))
		fmt.Fprintf(b, "Power:\t\t%d dW\t~ %.1f watts\n", data.Power, data.AsFloat(pzemruntime.Power))
		fmt.Fprintf(b, "Energy:\t\t%d Wh\t~ %.3f kWatt*hours\n", data.Energy, data.AsFloat(pzemruntime.Energy)/1000)
		fmt.Fprintf(b, "Power alarm H:\t%s\n", yesNo(pz.AlarmHighActive()))
		fmt.Fprintf(b, "Power alarm L:\t%s\n", yesNo(pz.AlarmLowActive()))
	case modbus.ReadHoldingRegister:
		fmt.Fprintf(b, "Configured MODBUS address:\t%d\n", pz.Addr())
		fmt.Fprintf(b, "Configured alarm high threshold:\t%d\n", pz.AlarmHighThreshold())
		fmt.Fprintf(b, "Configured alarm low threshold:\t%d\n", pz.AlarmLowThreshold())
		fmt.Fprintf(b, "Configured current range:\t%s\n", pzemruntime.ShuntToString[pz.Shunt()])
	case modbus.WriteSingleRegister:
		if m.Len() <= 3 {
			fmt.Fprintf(b, "Unknown write echo\n")
			return
		}
		switch uint16(m.Raw[3]) {
		case pzemruntime.DCHoldingAlarmHigh:
			fmt.Fprintf(b, "Alarm high threshold value changed to:\t%d\n", pz.AlarmHighThreshold())
		case pzemruntime.DCHoldingAlarmLow:
			fmt.Fprintf(b, "Alarm low threshold value changed to:\t%d\n", pz.AlarmLowThreshold())
		case pzemruntime.DCHoldingAddr:
			fmt.Fprintf(b, "Device MODBUS address changed to:\t%d\n", pz.Addr())
		case pzemruntime.DCHoldingShunt:
			fmt.Fprintf(b, "Current range changed to:\t%s\n", pzemruntime.ShuntToString[pz.Shunt()])
		default:
			fmt.Fprintf(b, "Unknown write echo\n")
		}
	case modbus.ResetEnergy:
		fmt.Fprintf(b, "Energy counter reset!\n")
	default:
		if m.IsError() {
			fmt.Fprintf(b, "Error reply, exception code:\t%d\n", m.ExceptionCode())
		} else {
			fmt.Fprintf(b, "Unrecognized reply\n")
		}
	}
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}
