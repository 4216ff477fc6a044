package grpcclient

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"net"
	"strconv"
	"strings"
	"testing"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/example/skinai/internal/logging"
	"github.com/example/skinai/internal/preprocess"
)

type predictFunc func(ctx context.Context, req *wrapperspb.BytesValue) (*structpb.ListValue, error)

// startServer registers a hand-written service descriptor for PredictMethod.
func startServer(t *testing.T, fn predictFunc) *bufconn.Listener {
	t.Helper()

	desc := grpc.ServiceDesc{
		ServiceName: "skinai.classifier.v1.Classifier",
		HandlerType: (*interface{})(nil),
		Methods: []grpc.MethodDesc{{
			MethodName: "Predict",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
				req := &wrapperspb.BytesValue{}
				if err := dec(req); err != nil {
					return nil, err
				}
				return fn(ctx, req)
			},
		}},
	}

	lis := bufconn.Listen(1 << 22)
	srv := grpc.NewServer(grpc.MaxRecvMsgSize(1 << 22))
	srv.RegisterService(&desc, struct{}{})
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)
	return lis
}

func dial(t *testing.T, lis *bufconn.Listener) *grpcClassifier {
	t.Helper()
	clf, conn, err := DialClassifier(context.Background(), "bufnet", zap.NewNop(),
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return clf.(*grpcClassifier)
}

func TestClassifyRoundTrip(t *testing.T) {
	var gotShape string
	var gotTensor preprocess.Tensor
	lis := startServer(t, func(ctx context.Context, req *wrapperspb.BytesValue) (*structpb.ListValue, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		if vals := md.Get(ShapeHeader); len(vals) == 1 {
			gotShape = vals[0]
		}
		shape, err := parseShape(gotShape)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		gotTensor, err = decodeTensor(req, shape)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		return structpb.NewList([]interface{}{0.1, 0.2, 0.3, 0.1, 0.2, 0.1})
	})

	tensor := preprocess.NewTensor(4, 2)
	for i := range tensor.Data {
		tensor.Data[i] = float32(i) * 1.5
	}

	scores, err := dial(t, lis).Classify(context.Background(), tensor)
	if err != nil {
		t.Fatalf("classify failed: %v", err)
	}
	if len(scores) != 6 || scores[2] != 0.3 {
		t.Fatalf("unexpected scores: %v", scores)
	}
	if gotShape != "1,2,4,3" {
		t.Fatalf("unexpected shape header: %q", gotShape)
	}
	for i, v := range tensor.Data {
		if gotTensor.Data[i] != v {
			t.Fatalf("tensor mismatch at %d: %v != %v", i, gotTensor.Data[i], v)
		}
	}
}

func TestClassifyWrapsServerError(t *testing.T) {
	lis := startServer(t, func(ctx context.Context, req *wrapperspb.BytesValue) (*structpb.ListValue, error) {
		return nil, status.Error(codes.Unavailable, "gpu busy")
	})

	_, err := dial(t, lis).Classify(context.Background(), preprocess.NewTensor(1, 1))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var opErr *logging.OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected OperationError, got %T", err)
	}
	if opErr.Operation != "grpcclient.predict" {
		t.Fatalf("unexpected operation: %s", opErr.Operation)
	}
	if status.Code(opErr.Err) != codes.Unavailable {
		t.Fatalf("unexpected code: %v", status.Code(opErr.Err))
	}
}

func TestDecodeScoresRejectsNonNumbers(t *testing.T) {
	list, err := structpb.NewList([]interface{}{0.5, "oops"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := DecodeScores(list); err == nil {
		t.Fatal("expected error for non-numeric score")
	}
}

func TestFormatShape(t *testing.T) {
	if got := FormatShape([4]int{1, 380, 380, 3}); got != "1,380,380,3" {
		t.Fatalf("unexpected shape header: %q", got)
	}
}

// decodeTensor is the server side of EncodeTensor.
func decodeTensor(msg *wrapperspb.BytesValue, shape [4]int) (preprocess.Tensor, error) {
	raw := msg.GetValue()
	if len(raw)%4 != 0 {
		return preprocess.Tensor{}, fmt.Errorf("tensor payload of %d bytes is not float32 aligned", len(raw))
	}
	want := shape[0] * shape[1] * shape[2] * shape[3]
	if len(raw)/4 != want {
		return preprocess.Tensor{}, fmt.Errorf("tensor has %d values, shape %v needs %d", len(raw)/4, shape, want)
	}
	t := preprocess.Tensor{Shape: shape, Data: make([]float32, want)}
	for i := range t.Data {
		t.Data[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return t, nil
}

// parseShape is the server side of FormatShape.
func parseShape(s string) ([4]int, error) {
	var shape [4]int
	parts := strings.Split(s, ",")
	if len(parts) != len(shape) {
		return shape, fmt.Errorf("shape %q must have %d dimensions", s, len(shape))
	}
	for i, p := range parts {
		d, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || d <= 0 {
			return shape, fmt.Errorf("invalid dimension %q in shape %q", p, s)
		}
		shape[i] = d
	}
	return shape, nil
}
