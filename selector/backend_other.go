//go:build !linux && !darwin

package selector

import (
	"errors"
)

type backend struct{}

func newBackend(int) (*backend, error) { return nil, errors.ErrUnsupported }

func (*backend) add(int, Events) error            { return errors.ErrUnsupported }
func (*backend) modify(int, Events, Events) error { return errors.ErrUnsupported }
func (*backend) remove(int, Events) error         { return errors.ErrUnsupported }
func (*backend) wake() error                      { return errors.ErrUnsupported }
func (*backend) close() error                     { return nil }

func (*backend) wait(int, func(int, Events)) (bool, error) { return false, errors.ErrUnsupported }
