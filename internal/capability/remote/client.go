// Package remote drives the face, emotion, pose and face-mesh engines hosted
// by an inference sidecar over gRPC.
package remote

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"time"

	"classroom-monitor/internal/classroom"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
)

const (
	defaultTimeout = 2 * time.Second
	maxMessageSize = 16 * 1024 * 1024
	imageQuality   = 90
)

// Client implements the classroom capability interfaces against a sidecar.
type Client struct {
	conn    *grpc.ClientConn
	health  healthpb.HealthClient
	timeout time.Duration
}

// Dial creates a client for addr. Calls are bounded by timeout (default 2s).
// The connection is established lazily; use Healthy to probe it. Extra
// options are appended to the defaults.
func Dial(addr string, timeout time.Duration, opts ...grpc.DialOption) (*Client, error) {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(maxMessageSize),
			grpc.MaxCallSendMsgSize(maxMessageSize),
		),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                10 * time.Second,
			Timeout:             3 * time.Second,
			PermitWithoutStream: true,
		}),
	}
	conn, err := grpc.NewClient(addr, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("inference client for %s: %w", addr, err)
	}
	return &Client{conn: conn, health: healthpb.NewHealthClient(conn), timeout: timeout}, nil
}

// Capabilities returns the client as a full capability bundle.
func (c *Client) Capabilities() classroom.Capabilities {
	return classroom.Capabilities{Faces: c, Emotions: c, Pose: c, Mesh: c}
}

// DetectFaces implements classroom.FaceDetector.
func (c *Client) DetectFaces(ctx context.Context, frame image.Image) ([]classroom.DetectedFace, error) {
	var resp FacesResponse
	if err := c.invokeImage(ctx, methodDetectFaces, frame, &resp); err != nil {
		return nil, err
	}
	out := make([]classroom.DetectedFace, 0, len(resp.Faces))
	for _, f := range resp.Faces {
		out = append(out, classroom.DetectedFace{Box: f.Box, Embedding: f.Embedding})
	}
	return out, nil
}

// ClassifyEmotion implements classroom.EmotionClassifier.
func (c *Client) ClassifyEmotion(ctx context.Context, crop image.Image) (classroom.Emotion, error) {
	var resp EmotionResponse
	if err := c.invokeImage(ctx, methodClassifyEmotion, crop, &resp); err != nil {
		return classroom.Emotion{}, err
	}
	return classroom.Emotion{Label: resp.Label, Confidence: resp.Confidence}, nil
}

// EstimatePose implements classroom.PoseEstimator.
func (c *Client) EstimatePose(ctx context.Context, frame image.Image) (classroom.Landmarks, error) {
	var resp PoseResponse
	if err := c.invokeImage(ctx, methodEstimatePose, frame, &resp); err != nil {
		return nil, err
	}
	return classroom.Landmarks(resp.Landmarks), nil
}

// EstimateFaceMesh implements classroom.FaceMeshEstimator.
func (c *Client) EstimateFaceMesh(ctx context.Context, frame image.Image) ([]classroom.Landmarks, error) {
	var resp FaceMeshResponse
	if err := c.invokeImage(ctx, methodEstimateFaceMesh, frame, &resp); err != nil {
		return nil, err
	}
	out := make([]classroom.Landmarks, 0, len(resp.Faces))
	for _, f := range resp.Faces {
		out = append(out, classroom.Landmarks(f))
	}
	return out, nil
}

// Healthy checks the sidecar's health status for the inference service.
func (c *Client) Healthy(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return fmt.Errorf("inference health: %w", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("inference health: %s", resp.GetStatus())
	}
	return nil
}

// Close tears down the connection.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) invokeImage(ctx context.Context, method string, img image.Image, resp any) error {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: imageQuality}); err != nil {
		return fmt.Errorf("%s: encode image: %w", method, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := &ImageRequest{Image: buf.Bytes()}
	if err := c.conn.Invoke(ctx, fullMethod(method), req, resp, grpc.ForceCodec(jsonCodec{})); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}
