package mpfe

import (
	"encoding/binary"
	"fmt"
	"io"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/probfit/probfit/param"
)

// Wire protocol for front-ends talking to out-of-process workers. Messages
// are structpb structs marshaled with proto and framed with a 4-byte
// big-endian length prefix. Client kinds: begin, redirect, constopt, close.
// Server kinds: result (answers begin), ack (answers redirect/constopt).
const (
	kindBegin    = "begin"
	kindRedirect = "redirect"
	kindConstOpt = "constopt"
	kindClose    = "close"
	kindResult   = "result"
	kindAck      = "ack"
)

const maxFrameSize = 16 << 20

func writeFrame(w io.Writer, s *structpb.Struct) error {
	data, err := proto.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %v", err)
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(data)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func readFrame(r io.Reader) (*structpb.Struct, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > maxFrameSize {
		return nil, fmt.Errorf("frame of %d bytes exceeds limit", n)
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	s := &structpb.Struct{}
	if err := proto.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %v", err)
	}
	return s, nil
}

func msgKind(s *structpb.Struct) string {
	return s.GetFields()["kind"].GetStringValue()
}

func encodeRedirect(r param.Redirect) (*structpb.Struct, error) {
	params := make(map[string]interface{}, r.Replacements.Len())
	for _, p := range r.Replacements.Params() {
		params[p.Name] = map[string]interface{}{
			"value": p.Value,
			"const": p.Const,
		}
	}
	return structpb.NewStruct(map[string]interface{}{
		"kind":           kindRedirect,
		"params":         params,
		"mustReplaceAll": r.MustReplaceAll,
		"nameChange":     r.NameChange,
		"recursive":      r.Recursive,
	})
}

func decodeRedirect(s *structpb.Struct) param.Redirect {
	fields := s.GetFields()
	set := param.NewSet()
	for name, v := range fields["params"].GetStructValue().GetFields() {
		pf := v.GetStructValue().GetFields()
		p := param.New(name, pf["value"].GetNumberValue())
		p.Const = pf["const"].GetBoolValue()
		set.Add(p)
	}
	return param.Redirect{
		Replacements:   set,
		MustReplaceAll: fields["mustReplaceAll"].GetBoolValue(),
		NameChange:     fields["nameChange"].GetBoolValue(),
		Recursive:      fields["recursive"].GetBoolValue(),
	}
}

func encodeChange(c param.StructuralChange) (*structpb.Struct, error) {
	switch ch := c.(type) {
	case param.Redirect:
		return encodeRedirect(ch)
	case param.ConstOptimize:
		return structpb.NewStruct(map[string]interface{}{
			"kind": kindConstOpt,
			"op":   float64(ch.Op),
		})
	default:
		return nil, fmt.Errorf("unsupported structural change %T", c)
	}
}

func decodeChange(s *structpb.Struct) (param.StructuralChange, error) {
	switch msgKind(s) {
	case kindRedirect:
		return decodeRedirect(s), nil
	case kindConstOpt:
		return param.ConstOptimize{Op: param.ConstOpCode(s.GetFields()["op"].GetNumberValue())}, nil
	default:
		return nil, fmt.Errorf("message kind %q is not a structural change", msgKind(s))
	}
}

// Serve runs the worker side of the wire protocol: it reads client frames
// from rw and answers them until a close message or EOF. Evaluation errors
// travel back inside result frames; they do not terminate the loop.
func Serve(rw io.ReadWriter, calc Calculator) error {
	for {
		msg, err := readFrame(rw)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("worker read failed: %v", err)
		}

		switch msgKind(msg) {
		case kindBegin:
			val, evalErr := calc.Evaluate()
			errText := ""
			if evalErr != nil {
				errText = evalErr.Error()
			}
			reply, err := structpb.NewStruct(map[string]interface{}{
				"kind":  kindResult,
				"value": val,
				"error": errText,
			})
			if err != nil {
				return err
			}
			if err := writeFrame(rw, reply); err != nil {
				return fmt.Errorf("worker write failed: %v", err)
			}

		case kindRedirect, kindConstOpt:
			change, err := decodeChange(msg)
			errText := ""
			if err == nil {
				err = calc.PropagateStructuralChange(change)
			}
			if err != nil {
				errText = err.Error()
			}
			reply, err := structpb.NewStruct(map[string]interface{}{
				"kind":  kindAck,
				"error": errText,
			})
			if err != nil {
				return err
			}
			if err := writeFrame(rw, reply); err != nil {
				return fmt.Errorf("worker write failed: %v", err)
			}

		case kindClose:
			return nil

		default:
			return fmt.Errorf("worker received unknown message kind %q", msgKind(msg))
		}
	}
}

// remoteHandle is the client side of the wire protocol.
type remoteHandle struct {
	name string
	w    io.Writer
	r    io.Reader
	c    io.Closer
}

func (h *remoteHandle) BeginCalculation() error {
	msg, err := structpb.NewStruct(map[string]interface{}{"kind": kindBegin})
	if err != nil {
		return err
	}
	return writeFrame(h.w, msg)
}

func (h *remoteHandle) Result() (float64, error) {
	msg, err := readFrame(h.r)
	if err != nil {
		return 0, fmt.Errorf("worker %s: failed to read result: %v", h.name, err)
	}
	if msgKind(msg) != kindResult {
		return 0, fmt.Errorf("worker %s: expected result frame, got %q", h.name, msgKind(msg))
	}
	fields := msg.GetFields()
	if errText := fields["error"].GetStringValue(); errText != "" {
		return 0, fmt.Errorf("worker %s: %s", h.name, errText)
	}
	return fields["value"].GetNumberValue(), nil
}

func (h *remoteHandle) PropagateStructuralChange(c param.StructuralChange) error {
	msg, err := encodeChange(c)
	if err != nil {
		return err
	}
	if err := writeFrame(h.w, msg); err != nil {
		return err
	}
	ack, err := readFrame(h.r)
	if err != nil {
		return fmt.Errorf("worker %s: failed to read ack: %v", h.name, err)
	}
	if msgKind(ack) != kindAck {
		return fmt.Errorf("worker %s: expected ack frame, got %q", h.name, msgKind(ack))
	}
	if errText := ack.GetFields()["error"].GetStringValue(); errText != "" {
		return fmt.Errorf("worker %s: %s", h.name, errText)
	}
	return nil
}

func (h *remoteHandle) Close() error {
	msg, err := structpb.NewStruct(map[string]interface{}{"kind": kindClose})
	if err == nil {
		err = writeFrame(h.w, msg)
	}
	if h.c != nil {
		if cerr := h.c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// LoopbackSpawner runs each worker behind the full wire protocol over an
// in-memory pipe pair. It exercises the same codec an out-of-process
// launcher would use, without the launching mechanics.
type LoopbackSpawner struct{}

// NewLoopbackSpawner creates a loopback spawner.
func NewLoopbackSpawner() *LoopbackSpawner {
	return &LoopbackSpawner{}
}

type pipeRW struct {
	io.Reader
	io.Writer
}

// Spawn starts a goroutine serving calc over an in-memory duplex pipe and
// returns the client handle.
func (s *LoopbackSpawner) Spawn(name string, calc Calculator) (Handle, error) {
	if calc == nil {
		return nil, fmt.Errorf("cannot spawn worker %s with nil calculator", name)
	}
	clientR, serverW := io.Pipe()
	serverR, clientW := io.Pipe()

	go func() {
		defer serverW.Close()
		if err := Serve(pipeRW{Reader: serverR, Writer: serverW}, calc); err != nil {
			serverR.CloseWithError(err)
		}
	}()

	return &remoteHandle{name: name, w: clientW, r: clientR, c: clientW}, nil
}
