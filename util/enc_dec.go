package util

import (
	"encoding/json"
	"fmt"
)

type EncoderDecoder[T any] interface {
	Encode(value T) ([]byte, error)
	Decode(data []byte) (*T, error)
	DecodeString(data string) (*T, error)
}

// DecodeError reports a stored value that no longer decodes into its type.
type DecodeError struct {
	Type string
	Err  error
}

func (e DecodeError) Error() string {
	return fmt.Sprintf("can not decode %s: %v", e.Type, e.Err)
}

func (e DecodeError) Unwrap() error {
	return e.Err
}

type JsonEncDec[T any] struct{}

var _ EncoderDecoder[any] = new(JsonEncDec[any])

func NewJsonEncoderDecoder[T any]() *JsonEncDec[T] {
	return &JsonEncDec[T]{}
}

func (encdec *JsonEncDec[T]) Encode(value T) ([]byte, error) {
	return json.Marshal(value)
}

func (encdec *JsonEncDec[T]) Decode(data []byte) (*T, error) {
	var res T
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, DecodeError{Type: fmt.Sprintf("%T", res), Err: err}
	}
	return &res, nil
}

// DecodeString decodes a value read back from redis.
func (encdec *JsonEncDec[T]) DecodeString(data string) (*T, error) {
	return encdec.Decode([]byte(data))
}
