package main

import (
	"errors"
	"os"

	"github.com/sirupsen/logrus"

	"shiftbot/internal/app"
	"shiftbot/internal/pipeline"
)

func main() {
	if err := app.Run(); err != nil {
		if errors.Is(err, pipeline.ErrRunInProgress) {
			logrus.Warn(err)
			os.Exit(2)
		}
		logrus.Errorf("shiftbot failed: %v", err)
		os.Exit(1)
	}
}
