package backend

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
)

// #region json-codec
const jsonCodecName = "json"

// jsonCodec lets us call the Python scoring server without generated protobuf
// bindings; both sides agree on JSON-encoded message bodies.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return jsonCodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// #endregion json-codec

// #region wire-types
type inferRequest struct {
	Texts     []string `json:"texts"`
	MaxLength int      `json:"max_length"`
}

type inferItem struct {
	Logits []float32 `json:"logits"`
	Hidden []float32 `json:"hidden,omitempty"`
}

type inferResponse struct {
	Items []inferItem `json:"items"`
}

type labelsRequest struct{}

type labelsResponse struct {
	Labels []string `json:"labels"`
}

// #endregion wire-types

// #region remote-struct
// Remote wraps the gRPC connection to the scoring model server.
type Remote struct {
	conn *grpc.ClientConn
}

// #endregion remote-struct

// #region constructor
// NewRemote connects to the scoring gRPC server.
func NewRemote(addr string) (*Remote, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(jsonCodecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Remote{conn: conn}, nil
}

// #endregion constructor

// #region close
// Close shuts down the gRPC connection.
func (r *Remote) Close() error {
	return r.conn.Close()
}

// #endregion close

// #region infer
// Infer sends one batch of texts to the scoring server.
func (r *Remote) Infer(ctx context.Context, texts []string, maxLength int) ([]ItemOutput, error) {
	req := inferRequest{Texts: texts, MaxLength: maxLength}
	var resp inferResponse
	if err := r.conn.Invoke(ctx, "/emotion.Scorer/Infer", &req, &resp); err != nil {
		return nil, fmt.Errorf("%w: infer rpc: %v", ErrUnavailable, err)
	}
	if len(resp.Items) != len(texts) {
		return nil, fmt.Errorf("%w: infer rpc returned %d items for %d texts",
			ErrUnavailable, len(resp.Items), len(texts))
	}

	out := make([]ItemOutput, len(resp.Items))
	for i, it := range resp.Items {
		out[i] = ItemOutput{Logits: it.Logits, Hidden: it.Hidden}
	}
	return out, nil
}

// #endregion infer

// #region labels
// Labels reports the model's label set, in model output order.
func (r *Remote) Labels(ctx context.Context) ([]string, error) {
	var resp labelsResponse
	if err := r.conn.Invoke(ctx, "/emotion.Scorer/Labels", &labelsRequest{}, &resp); err != nil {
		return nil, fmt.Errorf("%w: labels rpc: %v", ErrUnavailable, err)
	}
	return resp.Labels, nil
}

// #endregion labels
