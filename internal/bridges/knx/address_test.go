package knx

import (
	"errors"
	"testing"
)

func TestParseGroupAddress(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    GroupAddress
		wantErr bool
	}{
		{"simple", "2/1/14", GroupAddress{Main: 2, Middle: 1, Sub: 14}, false},
		{"zero address", "0/0/0", GroupAddress{}, false},
		{"max values", "31/7/255", GroupAddress{Main: 31, Middle: 7, Sub: 255}, false},
		{"main too large", "32/0/0", GroupAddress{}, true},
		{"middle too large", "0/8/0", GroupAddress{}, true},
		{"sub too large", "0/0/256", GroupAddress{}, true},
		{"two levels", "1/2", GroupAddress{}, true},
		{"four levels", "1/2/3/4", GroupAddress{}, true},
		{"non-numeric", "a/b/c", GroupAddress{}, true},
		{"negative", "-1/0/0", GroupAddress{}, true},
		{"empty", "", GroupAddress{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseGroupAddress(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseGroupAddress(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidGroupAddress) {
					t.Errorf("error = %v, want ErrInvalidGroupAddress", err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("ParseGroupAddress(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestGroupAddressString(t *testing.T) {
	ga := GroupAddress{Main: 2, Middle: 1, Sub: 14}
	if got := ga.String(); got != "2/1/14" {
		t.Errorf("String() = %q, want %q", got, "2/1/14")
	}
}

func TestGroupAddressWireFormat(t *testing.T) {
	tests := []struct {
		name string
		ga   GroupAddress
		want uint16
	}{
		{"zero", GroupAddress{}, 0x0000},
		{"main only", GroupAddress{Main: 1}, 0x0800},
		{"all fields", GroupAddress{Main: 2, Middle: 1, Sub: 14}, 0x110E},
		{"max", GroupAddress{Main: 31, Middle: 7, Sub: 255}, 0xFFFF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.ga.ToUint16()
			if got != tt.want {
				t.Errorf("ToUint16() = 0x%04X, want 0x%04X", got, tt.want)
			}
			if back := GroupAddressFromUint16(got); back != tt.ga {
				t.Errorf("GroupAddressFromUint16(0x%04X) = %+v, want %+v", got, back, tt.ga)
			}
		})
	}
}

func TestGroupAddressIsZero(t *testing.T) {
	if !(GroupAddress{}).IsZero() {
		t.Error("zero value should report IsZero")
	}
	if (GroupAddress{Sub: 1}).IsZero() {
		t.Error("0/0/1 should not report IsZero")
	}
}
