//go:build !goface

package main

import (
	"classroom-monitor/internal/classroom"
	"classroom-monitor/internal/platform/config"
)

// localFaceDetector returns nil: face detection runs on the inference sidecar.
func localFaceDetector(config.Config) (classroom.FaceDetector, func(), error) {
	return nil, nil, nil
}
