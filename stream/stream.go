// Package stream wraps the seekable byte stream backing a disk image with
// whole-buffer read/write helpers.
//
// Every image operation goes through a Device so that the first OS-level
// failure observed on it is latched and can be surfaced verbatim. The latch
// is never reset: it keeps that first failure for the lifetime of the
// Device, across all later operations, while each returned error still
// wraps its own cause.
package stream

import (
	"io"

	"github.com/osdev-kit/fat12img/errors"
)

// Device is a file-like wrapper around an [io.ReadWriteSeeker]. A Device is
// exclusive to one volume; sharing the underlying stream between two devices
// has undefined behavior.
type Device struct {
	backing io.ReadWriteSeeker

	// firstOSError holds the first error the backing stream ever returned.
	// It is never overwritten once set.
	firstOSError error
}

// New wraps a seekable stream in a Device.
func New(backing io.ReadWriteSeeker) *Device {
	return &Device{backing: backing}
}

// latch records err as the device's first OS error if none has been recorded
// yet, and returns an ErrIOFailed wrapping it.
func (dev *Device) latch(err error) errors.DriverError {
	if dev.firstOSError == nil {
		dev.firstOSError = err
	}
	return errors.ErrIOFailed.WrapError(err)
}

// FirstOSError returns the first error observed from the backing stream, or
// nil if every access succeeded so far.
func (dev *Device) FirstOSError() error {
	return dev.firstOSError
}

// ReadAt fills buffer with bytes starting at offset. Short reads are
// reported as I/O errors; the caller always gets a full buffer on success.
func (dev *Device) ReadAt(buffer []byte, offset int64) errors.DriverError {
	if _, err := dev.backing.Seek(offset, io.SeekStart); err != nil {
		return dev.latch(err)
	}
	if _, err := io.ReadFull(dev.backing, buffer); err != nil {
		return dev.latch(err)
	}
	return nil
}

// WriteAt writes buffer at offset. Short writes surface as I/O errors.
func (dev *Device) WriteAt(buffer []byte, offset int64) errors.DriverError {
	if _, err := dev.backing.Seek(offset, io.SeekStart); err != nil {
		return dev.latch(err)
	}
	n, err := dev.backing.Write(buffer)
	if err != nil {
		return dev.latch(err)
	}
	if n < len(buffer) {
		return dev.latch(io.ErrShortWrite)
	}
	return nil
}

// WriteZerosAt writes count zero bytes at offset, using a single 4096-byte
// scratch buffer.
func (dev *Device) WriteZerosAt(count, offset int64) errors.DriverError {
	const chunkSize = 4096
	zeros := make([]byte, chunkSize)

	for count > 0 {
		chunk := zeros
		if count < chunkSize {
			chunk = zeros[:count]
		}
		if err := dev.WriteAt(chunk, offset); err != nil {
			return err
		}
		offset += int64(len(chunk))
		count -= int64(len(chunk))
	}
	return nil
}
