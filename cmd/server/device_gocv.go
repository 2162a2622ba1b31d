//go:build gocv

package main

import (
	"classroom-monitor/internal/capture"
	"classroom-monitor/internal/classroom"
)

func openDevice(device int) (classroom.FrameSource, error) {
	cam, err := capture.OpenWebcam(device)
	if err != nil {
		return nil, err
	}
	return cam, nil
}
