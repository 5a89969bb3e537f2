package commute

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestKeys(t *testing.T) {
	descs := Descriptors("")
	if len(descs) != 2 {
		t.Fatalf("got %d descriptors", len(descs))
	}
	if descs[0].Name != "uprent-commute-addresses" || descs[0].GetTopic != "UPRENT_GET_ADDRESSES" {
		t.Errorf("addresses descriptor = %+v", descs[0])
	}
	if descs[1].Name != "uprent-commute-thresholds" || descs[1].UpdatedTopic != "UPRENT_THRESHOLDS_UPDATED" {
		t.Errorf("thresholds descriptor = %+v", descs[1])
	}

	custom := Descriptors("ACME_")
	if custom[1].SetTopic != "ACME_SET_THRESHOLDS" {
		t.Errorf("custom namespace ignored: %+v", custom[1])
	}
	if Addresses.Namespace != Namespace {
		t.Error("Descriptors mutated the package key")
	}
}

func TestDurationsJSON(t *testing.T) {
	data, err := json.Marshal(DefaultThresholds)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"walking":50,"biking":40,"transit":60,"driving":45}`
	if string(data) != want {
		t.Errorf("Marshal = %s, want %s", data, want)
	}
}

func TestDurationsWith(t *testing.T) {
	d, err := DefaultThresholds.With(ModeTransit, 30)
	if err != nil {
		t.Fatal(err)
	}
	if d.Transit != 30 || DefaultThresholds.Transit != 60 {
		t.Errorf("With changed the wrong value: %+v", d)
	}
	if _, err := d.With("flying", 1); err == nil {
		t.Error("expected error for unknown mode")
	}
	if v, ok := d.Get(ModeDriving); !ok || v != 45 {
		t.Errorf("Get(driving) = %d, %v", v, ok)
	}
}

func TestWithin(t *testing.T) {
	got := Durations{Walking: 60, Biking: 40, Transit: 10, Driving: 46}.Within(DefaultThresholds)
	want := map[string]bool{"walking": false, "biking": true, "transit": true, "driving": false}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Within = %v, want %v", got, want)
	}
}

func TestAddresses(t *testing.T) {
	addrs := AddAddress(nil, "Main St")
	addrs = AddAddress(addrs, "Oak Ave")
	addrs = AddAddress(addrs, "Main St")
	if !reflect.DeepEqual(addrs, []string{"Main St", "Oak Ave"}) {
		t.Errorf("AddAddress = %v", addrs)
	}

	orig := []string{"A", "B"}
	if got := RemoveAddress(orig, "A"); !reflect.DeepEqual(got, []string{"B"}) {
		t.Errorf("RemoveAddress = %v", got)
	}
	if !reflect.DeepEqual(orig, []string{"A", "B"}) {
		t.Error("RemoveAddress mutated its input")
	}
}
