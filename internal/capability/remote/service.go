package remote

import (
	"context"

	"classroom-monitor/internal/classroom"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified inference service name, also used for
// its health status.
const ServiceName = "classroom.inference.v1.Inference"

// Method names.
const (
	methodDetectFaces      = "DetectFaces"
	methodClassifyEmotion  = "ClassifyEmotion"
	methodEstimatePose     = "EstimatePose"
	methodEstimateFaceMesh = "EstimateFaceMesh"
)

// ImageRequest carries one JPEG-encoded image.
type ImageRequest struct {
	Image []byte `json:"image"`
}

// Face is one detected face in image pixel coordinates.
type Face struct {
	Box       classroom.Box `json:"box"`
	Embedding []float64     `json:"embedding"`
}

// FacesResponse lists the faces found in an image.
type FacesResponse struct {
	Faces []Face `json:"faces"`
}

// EmotionResponse is the classifier's verdict for a face crop.
type EmotionResponse struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// PoseResponse holds the body landmarks, empty when no body was found.
type PoseResponse struct {
	Landmarks []classroom.Landmark `json:"landmarks"`
}

// FaceMeshResponse holds one landmark set per face.
type FaceMeshResponse struct {
	Faces [][]classroom.Landmark `json:"faces"`
}

// InferenceServer is implemented by inference sidecars written in Go.
type InferenceServer interface {
	DetectFaces(context.Context, *ImageRequest) (*FacesResponse, error)
	ClassifyEmotion(context.Context, *ImageRequest) (*EmotionResponse, error)
	EstimatePose(context.Context, *ImageRequest) (*PoseResponse, error)
	EstimateFaceMesh(context.Context, *ImageRequest) (*FaceMeshResponse, error)
}

// RegisterInferenceServer registers srv on s. Clients must call with the
// JSON content-subtype, which this package registers.
func RegisterInferenceServer(s grpc.ServiceRegistrar, srv InferenceServer) {
	s.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*InferenceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: methodDetectFaces, Handler: unaryHandler(methodDetectFaces, InferenceServer.DetectFaces)},
		{MethodName: methodClassifyEmotion, Handler: unaryHandler(methodClassifyEmotion, InferenceServer.ClassifyEmotion)},
		{MethodName: methodEstimatePose, Handler: unaryHandler(methodEstimatePose, InferenceServer.EstimatePose)},
		{MethodName: methodEstimateFaceMesh, Handler: unaryHandler(methodEstimateFaceMesh, InferenceServer.EstimateFaceMesh)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "classroom/inference/v1/inference.proto",
}

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

func unaryHandler[Resp any](method string, call func(InferenceServer, context.Context, *ImageRequest) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(ImageRequest)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(InferenceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(InferenceServer), ctx, req.(*ImageRequest))
		}
		return interceptor(ctx, in, info, handler)
	}
}
