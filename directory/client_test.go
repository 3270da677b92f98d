package directory

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

func TestDial_NilConfig(t *testing.T) {
	if _, err := Dial(nil, nil); !errors.Is(err, ErrDirectory) {
		t.Errorf("Dial(nil, ...) error = %v, want ErrDirectory", err)
	}
}

func TestSetSecurityDescriptor_RejectsEmpty(t *testing.T) {
	c := &Client{log: zap.NewNop()}
	err := c.SetSecurityDescriptor(context.Background(), "CN=test", nil)
	if !errors.Is(err, ErrDirectory) {
		t.Fatalf("SetSecurityDescriptor(empty) error = %v, want ErrDirectory", err)
	}
}

func TestSdFlagsControl(t *testing.T) {
	ctrl := sdFlagsControl()
	if ctrl.GetControlType() != sdFlagsControlOID {
		t.Errorf("control OID = %q, want %q", ctrl.GetControlType(), sdFlagsControlOID)
	}
}
