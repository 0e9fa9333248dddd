package events

import (
	"fmt"
	"os"
	"time"
)

// NewConsumerID names this process within the worker consumer group.
func NewConsumerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "sheetsmith"
	}
	return fmt.Sprintf("%s-%d-%d", host, os.Getpid(), time.Now().UnixNano())
}
