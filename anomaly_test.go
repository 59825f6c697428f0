package pe

import (
	"encoding/binary"
	"testing"
	"time"
)

func hasAnomaly(anomalies []string, want string) bool {
	for _, a := range anomalies {
		if a == want {
			return true
		}
	}
	return false
}

func TestDetectHeaderAnomaliesZeroTimestamp(t *testing.T) {
	data := buildPE32(nil, [16]DataDirectory{})
	img, err := OpenBytes(data, nil)
	if err != nil {
		t.Fatalf("OpenBytes failed: %v", err)
	}
	defer img.Close()

	anomalies := img.Anomalies()
	if !hasAnomaly(anomalies, AnoPETimeStampNull) {
		t.Errorf("expected %q, got %v", AnoPETimeStampNull, anomalies)
	}
	if hasAnomaly(anomalies, AnoNumberOfSections10Plus) {
		t.Errorf("did not expect %q, got %v", AnoNumberOfSections10Plus, anomalies)
	}
	if hasAnomaly(anomalies, AnoImageBaseNull) {
		t.Errorf("did not expect %q, got %v", AnoImageBaseNull, anomalies)
	}
}

func TestDetectHeaderAnomaliesFutureTimestamp(t *testing.T) {
	data := buildPE32(nil, [16]DataDirectory{})

	// TimeDateStamp sits 4 bytes into the File Header, which itself
	// follows the 4-byte NT signature right after e_lfanew.
	timeStampOff := testELfanew + 4 + 4
	future := uint32(time.Now().Add(72 * time.Hour).Unix())
	binary.LittleEndian.PutUint32(data[timeStampOff:], future)

	img, err := OpenBytes(data, nil)
	if err != nil {
		t.Fatalf("OpenBytes failed: %v", err)
	}
	defer img.Close()

	if anomalies := img.Anomalies(); !hasAnomaly(anomalies, AnoPETimeStampFuture) {
		t.Errorf("expected %q, got %v", AnoPETimeStampFuture, anomalies)
	}
}
