//go:build goface

package main

import (
	"classroom-monitor/internal/capability/goface"
	"classroom-monitor/internal/classroom"
	"classroom-monitor/internal/platform/config"
)

func localFaceDetector(cfg config.Config) (classroom.FaceDetector, func(), error) {
	det, err := goface.New(cfg.FaceModelsDir)
	if err != nil {
		return nil, nil, err
	}
	return det, func() { _ = det.Close() }, nil
}
