//go:build !gocv

package main

import (
	"errors"

	"classroom-monitor/internal/classroom"
)

func openDevice(int) (classroom.FrameSource, error) {
	return nil, errors.New("local capture devices need a build with -tags gocv; set CAPTURE_URL to use an MJPEG camera")
}
