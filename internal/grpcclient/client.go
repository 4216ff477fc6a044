package grpcclient

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/example/skinai/internal/classifier"
	"github.com/example/skinai/internal/logging"
	"github.com/example/skinai/internal/preprocess"
)

// PredictMethod is the unary RPC served by the remote classifier. The request
// is a BytesValue holding the little-endian float32 NHWC tensor; the response
// is a ListValue of per-class scores.
const PredictMethod = "/skinai.classifier.v1.Classifier/Predict"

// ShapeHeader carries the tensor shape as comma-separated dimensions.
const ShapeHeader = "x-tensor-shape"

// DialClassifier returns a ready-to-use gRPC client for the model service.
func DialClassifier(ctx context.Context, addr string, logger *zap.Logger, opts ...grpc.DialOption) (classifier.Classifier, *grpc.ClientConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	}, opts...)

	conn, err := grpc.DialContext(dialCtx, addr, dialOpts...)
	if err != nil {
		wrapped := logging.NewOperationError("grpcclient.dial_classifier", "", err)
		logger.Error("failed to dial classifier", zap.Error(wrapped), zap.String("addr", addr))
		return nil, nil, wrapped
	}
	return &grpcClassifier{conn: conn, logger: logger.Named("grpc_classifier")}, conn, nil
}

type grpcClassifier struct {
	conn   *grpc.ClientConn
	logger *zap.Logger
}

func (g *grpcClassifier) Classify(ctx context.Context, tensor preprocess.Tensor) ([]float64, error) {
	ctx = metadata.AppendToOutgoingContext(ctx, ShapeHeader, FormatShape(tensor.Shape))

	resp := &structpb.ListValue{}
	if err := g.conn.Invoke(ctx, PredictMethod, EncodeTensor(tensor), resp); err != nil {
		wrapped := logging.NewOperationError("grpcclient.predict", "", err)
		g.logger.Error("classifier call failed", zap.Error(wrapped))
		return nil, wrapped
	}
	return DecodeScores(resp)
}

// Close closes the underlying connection.
func (g *grpcClassifier) Close() error {
	return g.conn.Close()
}

// EncodeTensor packs tensor data as little-endian float32.
func EncodeTensor(tensor preprocess.Tensor) *wrapperspb.BytesValue {
	buf := make([]byte, 4*len(tensor.Data))
	for i, v := range tensor.Data {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return wrapperspb.Bytes(buf)
}

// DecodeScores converts a ListValue of numbers into scores.
func DecodeScores(list *structpb.ListValue) ([]float64, error) {
	values := list.GetValues()
	out := make([]float64, len(values))
	for i, v := range values {
		n, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, fmt.Errorf("score %d is not a number", i)
		}
		out[i] = n.NumberValue
	}
	return out, nil
}

// FormatShape renders a shape for ShapeHeader.
func FormatShape(shape [4]int) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, ",")
}
