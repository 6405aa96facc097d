package telemetry

// Topic names for the vehicle sensor channels.
// The router accepts arbitrary topic strings; these constants cover the
// channels the standard acquisition firmware emits.
const (
	TopicCell           = "cell"
	TopicThermistor     = "therm"
	TopicTCU            = "tcu"
	TopicPackCurrent    = "pack_current"
	TopicPackVoltage    = "pack_voltage"
	TopicINSIMU         = "ins_imu"
	TopicINSGPS         = "ins_gps"
	TopicGPSBestPos     = "gps_best_pos"
	TopicSuspension     = "suspension"
	TopicFrontStrain    = "front_strain"
	TopicRearStrain     = "rear_strain"
	TopicFrontFrequency = "front_frequency"
	TopicRearFrequency  = "rear_frequency"
	TopicFrontAero      = "front_aero"
	TopicRearAero       = "rear_aero"
	TopicFrontAnalog    = "front_analog"
	TopicRearAnalog     = "rear_analog"
	TopicPDM            = "pdm"
	TopicBamocar        = "bamocar"
	TopicACULV          = "aculv"
)

// KnownTopics lists the standard topics in firmware emission order.
var KnownTopics = []string{
	TopicCell,
	TopicThermistor,
	TopicTCU,
	TopicPackCurrent,
	TopicPackVoltage,
	TopicINSIMU,
	TopicINSGPS,
	TopicGPSBestPos,
	TopicSuspension,
	TopicFrontStrain,
	TopicRearStrain,
	TopicFrontFrequency,
	TopicRearFrequency,
	TopicFrontAero,
	TopicRearAero,
	TopicFrontAnalog,
	TopicRearAnalog,
	TopicPDM,
	TopicBamocar,
	TopicACULV,
}
