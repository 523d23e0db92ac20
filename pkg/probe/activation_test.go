package probe

import (
	"testing"

	"github.com/asoronow/laser-controller/pkg/usbdmx"
)

func TestActivationReplay(t *testing.T) {
	ep := usbdmx.EndpointTarget{Address: 0x01}

	t.Run("none touches nothing", func(t *testing.T) {
		sess := usbdmx.NewSimSession(usbdmx.ReferenceIdentity())
		if err := (Activation{}).replay(sess, ep, 0); err != nil {
			t.Fatalf("replay failed: %v", err)
		}
		if len(sess.Writes()) != 0 || len(sess.Controls()) != 0 {
			t.Error("ActivationNone must not touch the device")
		}
	})

	t.Run("raw bytes in order", func(t *testing.T) {
		sess := usbdmx.NewSimSession(usbdmx.ReferenceIdentity())
		act := PreambleActivation([]byte{0x7E, 0x06}, []byte{0xE7})
		if err := act.replay(sess, ep, 0); err != nil {
			t.Fatalf("replay failed: %v", err)
		}
		writes := sess.Writes()
		if len(writes) != 2 {
			t.Fatalf("writes = %d, want 2", len(writes))
		}
		if writes[0].Payload[0] != 0x7E || writes[1].Payload[0] != 0xE7 {
			t.Errorf("preamble order wrong: %v", writes)
		}
	})

	t.Run("line coding sequence", func(t *testing.T) {
		sess := usbdmx.NewSimSession(usbdmx.ReferenceIdentity())
		if err := LineCodingActivation().replay(sess, ep, 0); err != nil {
			t.Fatalf("replay failed: %v", err)
		}
		ops := sess.Controls()
		if len(ops) != 2 {
			t.Fatalf("controls = %d, want 2", len(ops))
		}
		if ops[0].Request != usbdmx.RequestSetLineCoding || len(ops[0].Payload) != 7 {
			t.Errorf("first op = %+v, want SET_LINE_CODING", ops[0])
		}
		if ops[1].Request != usbdmx.RequestSetControlLineState || ops[1].Value != 0x01 {
			t.Errorf("second op = %+v, want DTR assert", ops[1])
		}
	})

	t.Run("line state value", func(t *testing.T) {
		sess := usbdmx.NewSimSession(usbdmx.ReferenceIdentity())
		if err := LineStateActivation(true, true).replay(sess, ep, 0); err != nil {
			t.Fatalf("replay failed: %v", err)
		}
		ops := sess.Controls()
		if len(ops) != 1 || ops[0].Value != 0x03 {
			t.Errorf("ops = %+v, want one SET_CONTROL_LINE_STATE 0x03", ops)
		}
	})
}
