package model

import (
	"context"
	"errors"
	"testing"
	"time"
)

type recordingSubscriber struct {
	calls [][]Change
}

func (r *recordingSubscriber) OnStateChanged(_ *Service, changes []Change) {
	r.calls = append(r.calls, changes)
}

func newTestService(t *testing.T) *Service {
	t.Helper()

	svc := NewService(ServiceTypeContentDir1, ServiceIDContentDirectory)
	vars := []*StateVariableMetadata{
		{Name: "SystemUpdateID", Type: DataTypeUI4, Evented: true},
		{Name: "ContainerUpdateIDs", Type: DataTypeString, Evented: true},
		{Name: "A_ARG_TYPE_BrowseFlag", Type: DataTypeString, AllowedValues: []string{"BrowseMetadata", "BrowseDirectChildren"}},
		{Name: "A_ARG_TYPE_Count", Type: DataTypeUI4},
		{Name: "Volume", Type: DataTypeUI2, Range: &AllowedRange{Minimum: 0, Maximum: 100, Step: 1}},
	}
	for _, meta := range vars {
		if err := svc.AddStateVariable(NewStateVariable(meta)); err != nil {
			t.Fatalf("AddStateVariable(%s): %v", meta.Name, err)
		}
	}
	return svc
}

func TestDataTypeRoundTrip(t *testing.T) {
	tests := []struct {
		dt   DataType
		wire string
		want any
	}{
		{DataTypeUI4, "4294967295", int64(4294967295)},
		{DataTypeI2, "-12", int64(-12)},
		{DataTypeBoolean, "1", true},
		{DataTypeBoolean, "0", false},
		{DataTypeString, "hello", "hello"},
		{DataTypeR8, "1.5", 1.5},
	}

	for _, tt := range tests {
		t.Run(tt.dt.String()+"/"+tt.wire, func(t *testing.T) {
			got, err := tt.dt.Decode(tt.wire)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if got != tt.want {
				t.Errorf("Decode = %v (%T), want %v (%T)", got, got, tt.want, tt.want)
			}
			enc, err := tt.dt.Encode(got)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if enc != tt.wire {
				t.Errorf("Encode = %q, want %q", enc, tt.wire)
			}
		})
	}
}

func TestDataTypeDecodeErrors(t *testing.T) {
	tests := []struct {
		dt   DataType
		wire string
	}{
		{DataTypeUI1, "256"},
		{DataTypeUI4, "-1"},
		{DataTypeI4, "abc"},
		{DataTypeBoolean, "maybe"},
		{DataTypeChar, "ab"},
		{DataTypeBinHex, "zz"},
	}

	for _, tt := range tests {
		if _, err := tt.dt.Decode(tt.wire); !errors.Is(err, ErrValueType) {
			t.Errorf("%s.Decode(%q) error = %v, want ErrValueType", tt.dt, tt.wire, err)
		}
	}
}

func TestParseDataType(t *testing.T) {
	for _, name := range []string{"ui4", "dateTime.tz", "bin.base64", "boolean"} {
		dt, err := ParseDataType(name)
		if err != nil {
			t.Fatalf("ParseDataType(%q): %v", name, err)
		}
		if dt.String() != name {
			t.Errorf("ParseDataType(%q).String() = %q", name, dt.String())
		}
	}
	if _, err := ParseDataType("unknown"); !errors.Is(err, ErrUnknownDataType) {
		t.Errorf("ParseDataType(unknown) error = %v, want ErrUnknownDataType", err)
	}
}

func TestDateTimeDecode(t *testing.T) {
	v, err := DataTypeDate.Decode("2024-02-29")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)
	if !v.(time.Time).Equal(want) {
		t.Errorf("Decode = %v, want %v", v, want)
	}
}

func TestStateVariableConstraints(t *testing.T) {
	svc := newTestService(t)

	t.Run("AllowedValues", func(t *testing.T) {
		sv, _ := svc.StateVariable("A_ARG_TYPE_BrowseFlag")
		if _, err := sv.DecodeValue("BrowseMetadata"); err != nil {
			t.Errorf("DecodeValue(BrowseMetadata): %v", err)
		}
		if _, err := sv.DecodeValue("BrowseEverything"); !errors.Is(err, ErrValueNotAllowed) {
			t.Errorf("DecodeValue(BrowseEverything) error = %v, want ErrValueNotAllowed", err)
		}
	})

	t.Run("Range", func(t *testing.T) {
		sv, _ := svc.StateVariable("Volume")
		if _, err := sv.DecodeValue("100"); err != nil {
			t.Errorf("DecodeValue(100): %v", err)
		}
		if _, err := sv.DecodeValue("101"); !errors.Is(err, ErrValueOutOfRange) {
			t.Errorf("DecodeValue(101) error = %v, want ErrValueOutOfRange", err)
		}
	})

	t.Run("Default", func(t *testing.T) {
		sv, _ := svc.StateVariable("SystemUpdateID")
		if sv.Value() != int64(0) {
			t.Errorf("default = %v, want 0", sv.Value())
		}
		if sv.Encoded() != "0" {
			t.Errorf("Encoded = %q, want 0", sv.Encoded())
		}
	})
}

func TestServiceUpdateCoalescesEventedChanges(t *testing.T) {
	svc := newTestService(t)
	sub := &recordingSubscriber{}
	svc.Subscribe(sub)

	err := svc.Update(func(tx *Tx) error {
		if err := tx.Set("SystemUpdateID", uint32(1)); err != nil {
			return err
		}
		if err := tx.Set("ContainerUpdateIDs", "music,1"); err != nil {
			return err
		}
		// Not evented.
		return tx.Set("A_ARG_TYPE_Count", uint32(9))
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	if len(sub.calls) != 1 {
		t.Fatalf("subscriber called %d times, want 1", len(sub.calls))
	}
	got := sub.calls[0]
	if len(got) != 2 || got[0].Name != "SystemUpdateID" || got[1].Name != "ContainerUpdateIDs" {
		t.Errorf("changes = %+v, want SystemUpdateID and ContainerUpdateIDs", got)
	}
	if v, _ := svc.Get("A_ARG_TYPE_Count"); v != int64(9) {
		t.Errorf("A_ARG_TYPE_Count = %v, want 9", v)
	}
}

func TestServiceUpdateRollsBackOnError(t *testing.T) {
	svc := newTestService(t)
	sub := &recordingSubscriber{}
	svc.Subscribe(sub)

	boom := errors.New("boom")
	err := svc.Update(func(tx *Tx) error {
		_ = tx.Set("SystemUpdateID", uint32(5))
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Update error = %v, want boom", err)
	}
	if v, _ := svc.Get("SystemUpdateID"); v != int64(0) {
		t.Errorf("SystemUpdateID = %v, want 0", v)
	}
	if len(sub.calls) != 0 {
		t.Errorf("subscriber called %d times, want 0", len(sub.calls))
	}
}

func TestServiceSetUnchangedValueIsSilent(t *testing.T) {
	svc := newTestService(t)
	sub := &recordingSubscriber{}
	svc.Subscribe(sub)

	if err := svc.Set("SystemUpdateID", 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if len(sub.calls) != 0 {
		t.Errorf("subscriber called %d times, want 0", len(sub.calls))
	}

	svc.Unsubscribe(sub)
	_ = svc.Set("SystemUpdateID", 3)
	if len(sub.calls) != 0 {
		t.Errorf("unsubscribed subscriber called %d times", len(sub.calls))
	}
}

func TestServiceActions(t *testing.T) {
	svc := newTestService(t)

	action := NewAction(&ActionMetadata{
		Name: "GetSystemUpdateID",
		Out:  []Argument{{Name: "Id", RelatedStateVariable: "SystemUpdateID"}},
	}, func(ctx context.Context, in map[string]any) (map[string]any, error) {
		return map[string]any{"Id": uint32(7)}, nil
	})
	if err := svc.AddAction(action); err != nil {
		t.Fatalf("AddAction: %v", err)
	}
	if err := svc.AddAction(action); !errors.Is(err, ErrDuplicateAction) {
		t.Errorf("AddAction duplicate error = %v, want ErrDuplicateAction", err)
	}

	bad := NewAction(&ActionMetadata{
		Name: "Broken",
		In:   []Argument{{Name: "X", RelatedStateVariable: "Nope"}},
	}, nil)
	if err := svc.AddAction(bad); !errors.Is(err, ErrUnknownRelatedVariable) {
		t.Errorf("AddAction bad error = %v, want ErrUnknownRelatedVariable", err)
	}

	got, err := svc.Action("GetSystemUpdateID")
	if err != nil {
		t.Fatalf("Action: %v", err)
	}
	out, err := got.Invoke(context.Background(), nil)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if out["Id"] != uint32(7) {
		t.Errorf("Id = %v, want 7", out["Id"])
	}

	if _, err := svc.Action("Missing"); !errors.Is(err, ErrActionNotFound) {
		t.Errorf("Action(Missing) error = %v, want ErrActionNotFound", err)
	}
}

func TestActionInvokeMissingOutput(t *testing.T) {
	action := NewAction(&ActionMetadata{
		Name: "X",
		Out:  []Argument{{Name: "Result", RelatedStateVariable: "A"}},
	}, func(ctx context.Context, in map[string]any) (map[string]any, error) {
		return map[string]any{}, nil
	})
	if _, err := action.Invoke(context.Background(), nil); !errors.Is(err, ErrMissingArgument) {
		t.Errorf("Invoke error = %v, want ErrMissingArgument", err)
	}
}

func TestDeviceTree(t *testing.T) {
	root := NewDevice(NewUDN(), DeviceTypeMediaServer1, "root")
	child := NewDevice(NewUDN(), "urn:schemas-upnp-org:device:Basic:1", "child")
	grandchild := NewDevice(NewUDN(), "urn:schemas-upnp-org:device:Basic:1", "grandchild")

	if err := child.AddEmbedded(grandchild); err != nil {
		t.Fatalf("AddEmbedded(grandchild): %v", err)
	}
	if err := root.AddEmbedded(child); err != nil {
		t.Fatalf("AddEmbedded(child): %v", err)
	}

	t.Run("Cycle", func(t *testing.T) {
		if err := grandchild.AddEmbedded(root); !errors.Is(err, ErrDeviceCycle) {
			t.Errorf("AddEmbedded(root) error = %v, want ErrDeviceCycle", err)
		}
		if err := root.AddEmbedded(root); !errors.Is(err, ErrDeviceCycle) {
			t.Errorf("AddEmbedded(self) error = %v, want ErrDeviceCycle", err)
		}
	})

	t.Run("DuplicateUDN", func(t *testing.T) {
		dup := NewDevice(grandchild.UDN(), "urn:schemas-upnp-org:device:Basic:1", "dup")
		if err := root.AddEmbedded(dup); !errors.Is(err, ErrDuplicateUDN) {
			t.Errorf("AddEmbedded(dup) error = %v, want ErrDuplicateUDN", err)
		}
	})

	t.Run("WalkOrder", func(t *testing.T) {
		var names []string
		_ = root.Walk(func(d *Device) error {
			names = append(names, d.FriendlyName())
			return nil
		})
		want := []string{"root", "child", "grandchild"}
		if len(names) != len(want) {
			t.Fatalf("Walk visited %v, want %v", names, want)
		}
		for i := range want {
			if names[i] != want[i] {
				t.Errorf("Walk[%d] = %s, want %s", i, names[i], want[i])
			}
		}
	})

	t.Run("Services", func(t *testing.T) {
		svc := NewService(ServiceTypeConnectionMgr1, ServiceIDConnectionManager)
		if err := grandchild.AddService(svc); err != nil {
			t.Fatalf("AddService: %v", err)
		}
		if err := grandchild.AddService(svc); !errors.Is(err, ErrDuplicateService) {
			t.Errorf("AddService duplicate error = %v, want ErrDuplicateService", err)
		}
		if len(root.AllServices()) != 1 {
			t.Errorf("AllServices = %d, want 1", len(root.AllServices()))
		}
		if _, err := root.Service(ServiceIDConnectionManager); !errors.Is(err, ErrServiceNotFound) {
			t.Errorf("root.Service error = %v, want ErrServiceNotFound", err)
		}
	})
}

func TestTypeMatches(t *testing.T) {
	tests := []struct {
		requested, advertised string
		want                  bool
	}{
		{ServiceTypeContentDir1, ServiceTypeContentDir1, true},
		{ServiceTypeContentDir1, "urn:schemas-upnp-org:service:ContentDirectory:2", true},
		{"urn:schemas-upnp-org:service:ContentDirectory:2", ServiceTypeContentDir1, false},
		{ServiceTypeConnectionMgr1, ServiceTypeContentDir1, false},
		{"upnp:rootdevice", "upnp:rootdevice", true},
	}
	for _, tt := range tests {
		if got := TypeMatches(tt.requested, tt.advertised); got != tt.want {
			t.Errorf("TypeMatches(%q, %q) = %v, want %v", tt.requested, tt.advertised, got, tt.want)
		}
	}
}
