// README: Uniform stage result; every pipeline boundary hands one of these to the next stage.
package envelope

import "encoding/json"

// Kind tags the failure variant carried by a non-ok Envelope.
type Kind string

const (
	KindNone                Kind = ""
	KindInputTooLong        Kind = "input_too_long"
	KindExtractionAmbiguous Kind = "extraction_ambiguous"
	KindExtractionBackend   Kind = "extraction_backend"
	KindGeocodeFailed       Kind = "geocode_failed"
	KindRouteNotFound       Kind = "route_not_found"
	KindRoutingBackend      Kind = "routing_backend"
	KindNarrationFailed     Kind = "narration_failed"
)

// Envelope carries either Data (OK) or a Message and Kind (not OK), never both.
type Envelope[T any] struct {
	OK      bool
	Data    T
	Message string
	Kind    Kind
}

// OK wraps a successful stage result.
func OK[T any](data T) Envelope[T] {
	return Envelope[T]{OK: true, Data: data}
}

// Fail wraps a stage failure.
func Fail[T any](message string, kind Kind) Envelope[T] {
	return Envelope[T]{Message: message, Kind: kind}
}

// Is reports whether e is a failure of the given kind.
func (e Envelope[T]) Is(kind Kind) bool {
	return !e.OK && e.Kind == kind
}

type okWire[T any] struct {
	OK   bool `json:"ok"`
	Data T    `json:"data"`
}

type failWire struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
	Kind    Kind   `json:"kind,omitempty"`
}

// MarshalJSON writes {"ok":true,"data":...} or {"ok":false,"message":...,"kind":...}.
func (e Envelope[T]) MarshalJSON() ([]byte, error) {
	if e.OK {
		return json.Marshal(okWire[T]{OK: true, Data: e.Data})
	}
	return json.Marshal(failWire{OK: false, Message: e.Message, Kind: e.Kind})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (e *Envelope[T]) UnmarshalJSON(b []byte) error {
	var head struct {
		OK      bool            `json:"ok"`
		Data    json.RawMessage `json:"data"`
		Message string          `json:"message"`
		Kind    Kind            `json:"kind"`
	}
	if err := json.Unmarshal(b, &head); err != nil {
		return err
	}

	var out Envelope[T]
	if head.OK {
		out.OK = true
		if len(head.Data) > 0 {
			if err := json.Unmarshal(head.Data, &out.Data); err != nil {
				return err
			}
		}
	} else {
		out.Message = head.Message
		out.Kind = head.Kind
	}
	*e = out
	return nil
}
