package util

import "time"

// TimeOperationMicroseconds runs op and returns how long it took.
func TimeOperationMicroseconds(op func()) int64 {
	start := time.Now()
	op()
	return time.Since(start).Microseconds()
}

// TimeOperationErr is TimeOperationMicroseconds for operations that can fail.
func TimeOperationErr(op func() error) (int64, error) {
	var err error
	us := TimeOperationMicroseconds(func() { err = op() })
	return us, err
}
