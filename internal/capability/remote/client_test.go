package remote

import (
	"context"
	"errors"
	"image"
	"net"
	"testing"
	"time"

	"classroom-monitor/internal/classroom"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type fakeInference struct {
	emotionErr error
}

func (f *fakeInference) DetectFaces(ctx context.Context, req *ImageRequest) (*FacesResponse, error) {
	if len(req.Image) == 0 {
		return nil, status.Error(codes.InvalidArgument, "empty image")
	}
	return &FacesResponse{Faces: []Face{{
		Box:       classroom.Box{Top: 1, Right: 5, Bottom: 6, Left: 2},
		Embedding: []float64{0.1, 0.2},
	}}}, nil
}

func (f *fakeInference) ClassifyEmotion(ctx context.Context, req *ImageRequest) (*EmotionResponse, error) {
	if f.emotionErr != nil {
		return nil, f.emotionErr
	}
	return &EmotionResponse{Label: "Happy", Confidence: 0.75}, nil
}

func (f *fakeInference) EstimatePose(ctx context.Context, req *ImageRequest) (*PoseResponse, error) {
	return &PoseResponse{Landmarks: []classroom.Landmark{{X: 0.5, Y: 0.2}}}, nil
}

func (f *fakeInference) EstimateFaceMesh(ctx context.Context, req *ImageRequest) (*FaceMeshResponse, error) {
	return &FaceMeshResponse{Faces: [][]classroom.Landmark{{{X: 0.1, Y: 0.1}}, {{X: 0.9, Y: 0.9}}}}, nil
}

func newTestClient(t *testing.T, srv InferenceServer, servingStatus healthpb.HealthCheckResponse_ServingStatus) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer()
	RegisterInferenceServer(s, srv)
	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, servingStatus)
	healthpb.RegisterHealthServer(s, hs)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	c, err := Dial("passthrough:///bufnet", time.Second,
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func testImage() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 8, 8))
}

func TestClient_capabilities(t *testing.T) {
	c := newTestClient(t, &fakeInference{}, healthpb.HealthCheckResponse_SERVING)
	ctx := context.Background()

	faces, err := c.DetectFaces(ctx, testImage())
	if err != nil {
		t.Fatalf("DetectFaces: %v", err)
	}
	if len(faces) != 1 || faces[0].Box.Right != 5 || len(faces[0].Embedding) != 2 {
		t.Errorf("unexpected faces %+v", faces)
	}

	em, err := c.ClassifyEmotion(ctx, testImage())
	if err != nil || em.Label != "Happy" || em.Confidence != 0.75 {
		t.Errorf("ClassifyEmotion: %+v %v", em, err)
	}

	pose, err := c.EstimatePose(ctx, testImage())
	if err != nil || len(pose) != 1 || pose[0].Y != 0.2 {
		t.Errorf("EstimatePose: %+v %v", pose, err)
	}

	meshes, err := c.EstimateFaceMesh(ctx, testImage())
	if err != nil || len(meshes) != 2 {
		t.Errorf("EstimateFaceMesh: %+v %v", meshes, err)
	}

	caps := c.Capabilities()
	if caps.Faces == nil || caps.Emotions == nil || caps.Pose == nil || caps.Mesh == nil {
		t.Error("capability bundle should be complete")
	}
}

func TestClient_propagates_status_errors(t *testing.T) {
	c := newTestClient(t, &fakeInference{emotionErr: status.Error(codes.Unavailable, "model loading")}, healthpb.HealthCheckResponse_SERVING)

	_, err := c.ClassifyEmotion(context.Background(), testImage())
	if err == nil {
		t.Fatal("expected an error")
	}
	var se interface{ GRPCStatus() *status.Status }
	if !errors.As(err, &se) || se.GRPCStatus().Code() != codes.Unavailable {
		t.Errorf("expected Unavailable status, got %v", err)
	}
}

func TestClient_Healthy(t *testing.T) {
	t.Run("serving", func(t *testing.T) {
		c := newTestClient(t, &fakeInference{}, healthpb.HealthCheckResponse_SERVING)
		if err := c.Healthy(context.Background()); err != nil {
			t.Errorf("expected healthy, got %v", err)
		}
	})
	t.Run("not_serving", func(t *testing.T) {
		c := newTestClient(t, &fakeInference{}, healthpb.HealthCheckResponse_NOT_SERVING)
		if err := c.Healthy(context.Background()); err == nil {
			t.Error("expected an error for NOT_SERVING")
		}
	})
}
