package allergy

import "strconv"

const (
	counterKey    = "allergy/counter"
	recordPrefix  = "allergy/record/"
	patientPrefix = "allergy/patient/"
	historyPrefix = "allergy/history/"
	xsensPrefix   = "allergy/xsens/"
)

func recordKey(id uint64) string       { return recordPrefix + strconv.FormatUint(id, 10) }
func patientKey(patient string) string { return patientPrefix + patient }
func historyKey(id uint64) string      { return historyPrefix + strconv.FormatUint(id, 10) }
func crossSensKey(drug string) string  { return xsensPrefix + drug }
