package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidateFlags(t *testing.T) {
	tests := []struct {
		name     string
		count    int
		gridSize int
		colors   int
		delay    time.Duration
		wantErr  string
	}{
		{name: "defaults", count: 100, gridSize: 100, colors: 16, delay: 10 * time.Millisecond},
		{name: "no delay", count: 1, gridSize: 1, colors: 1},
		{name: "zero count", count: 0, gridSize: 100, colors: 16, wantErr: "--count"},
		{name: "zero grid", count: 1, gridSize: 0, colors: 16, wantErr: "--grid-size"},
		{name: "negative grid", count: 1, gridSize: -5, colors: 16, wantErr: "--grid-size"},
		{name: "zero colors", count: 1, gridSize: 100, colors: 0, wantErr: "--colors"},
		{name: "negative delay", count: 1, gridSize: 100, colors: 16, delay: -time.Second, wantErr: "--delay"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateFlags(tt.count, tt.gridSize, tt.colors, tt.delay)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
