package util

import (
	"encoding/json"

	"google.golang.org/protobuf/types/known/structpb"
)

// StructFromAny converts a JSON-serializable value into a protobuf Struct by
// way of its JSON form, so typed structs keep their json tags.
func StructFromAny(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

func ConvertFromProto(data *structpb.Struct) map[string]any {
	if data == nil {
		return map[string]any{}
	}
	return data.AsMap()
}
