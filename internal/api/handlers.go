package api

import (
	"fmt"
	"math"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/buessow/glumagic/internal/engine"
	"github.com/buessow/glumagic/internal/models"
	"github.com/buessow/glumagic/internal/utils"
)

// FromProtoVectorRequest reads the "at" field, an RFC3339 string or Unix
// milliseconds.
func FromProtoVectorRequest(req *structpb.Struct) (models.VectorRequest, error) {
	at, err := instantField(req, "at")
	if err != nil {
		return models.VectorRequest{}, err
	}
	return models.VectorRequest{At: at}, nil
}

// FromProtoMatrixRequest reads the "start" field.
func FromProtoMatrixRequest(req *structpb.Struct) (models.MatrixRequest, error) {
	start, err := instantField(req, "start")
	if err != nil {
		return models.MatrixRequest{}, err
	}
	return models.MatrixRequest{Start: start}, nil
}

func instantField(req *structpb.Struct, name string) (time.Time, error) {
	if req == nil {
		return time.Time{}, fmt.Errorf("request is nil")
	}
	v, ok := req.GetFields()[name]
	if !ok {
		return time.Time{}, fmt.Errorf("%s is required", name)
	}
	switch kind := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return utils.ParseInstant(kind.StringValue)
	case *structpb.Value_NumberValue:
		return time.UnixMilli(int64(kind.NumberValue)).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("%s must be a string or number", name)
	}
}

// ToProtoVectorResult converts a vector result. Non-finite numbers become
// null.
func ToProtoVectorResult(res models.VectorResult) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"runId":       structpb.NewStringValue(res.RunID),
		"at":          structpb.NewStringValue(res.At.UTC().Format(time.RFC3339)),
		"lastGlucose": numberValue(res.LastGlucose),
		"columns":     stringList(res.Columns),
		"values":      numberList(res.Values),
		"anomalies":   structpb.NewNumberValue(float64(res.Anomalies)),
	}}
}

// ToProtoMatrix converts a feature matrix into {"dates": [...], "columns":
// {name: [...]}}.
func ToProtoMatrix(m *engine.FeatureMatrix) *structpb.Struct {
	dates := make([]string, 0, m.Len())
	for _, d := range m.Dates() {
		dates = append(dates, d.UTC().Format(time.RFC3339))
	}
	columns := make(map[string]*structpb.Value, len(m.Names()))
	for _, name := range m.Names() {
		values, _ := m.Column(name)
		columns[name] = numberList(values)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"names":   stringList(m.Names()),
		"dates":   stringList(dates),
		"columns": structpb.NewStructValue(&structpb.Struct{Fields: columns}),
	}}
}

// StatusFromError maps service errors to gRPC status codes.
func StatusFromError(err error) error {
	if err == nil {
		return nil
	}
	var code codes.Code
	switch utils.KindOf(err) {
	case utils.KindInvalid:
		code = codes.InvalidArgument
	case utils.KindUnavailable:
		code = codes.Unavailable
	case utils.KindDataQuality:
		code = codes.FailedPrecondition
	default:
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}

func numberValue(v float64) *structpb.Value {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return structpb.NewNullValue()
	}
	return structpb.NewNumberValue(v)
}

func numberList(values []float64) *structpb.Value {
	list := make([]*structpb.Value, len(values))
	for i, v := range values {
		list[i] = numberValue(v)
	}
	return structpb.NewListValue(&structpb.ListValue{Values: list})
}

func stringList(values []string) *structpb.Value {
	list := make([]*structpb.Value, len(values))
	for i, v := range values {
		list[i] = structpb.NewStringValue(v)
	}
	return structpb.NewListValue(&structpb.ListValue{Values: list})
}
