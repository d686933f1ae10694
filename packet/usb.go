package packet

import (
	"fmt"
	"time"

	"github.com/google/gousb"
)

// Default USB identity of a pod exposing its native bulk interface.
const (
	// PodVID is the vendor ID the pod enumerates with
	PodVID = 0x04D8

	// PodPID is the product ID the pod enumerates with
	PodPID = 0x00DF

	// podEndpoint is the bulk endpoint number on the default interface
	podEndpoint = 2
)

// usbConn adapts a pair of bulk endpoints to the byte stream Device wants.
type usbConn struct {
	in     *gousb.InEndpoint
	out    *gousb.OutEndpoint
	device *gousb.Device
	ctx    *gousb.Context
	done   func()
}

func (c *usbConn) Read(p []byte) (int, error) {
	return c.in.Read(p)
}

func (c *usbConn) Write(p []byte) (int, error) {
	return c.out.Write(p)
}

func (c *usbConn) Close() error {
	c.done()
	err := c.device.Close()
	err2 := c.ctx.Close()
	if err != nil {
		return err
	}
	return err2
}

// OpenUSB finds a pod by VID/PID on its native bulk interface and returns a
// connected Device.  Pass zero values to use the pod defaults.
func OpenUSB(vid, pid uint16, timeout time.Duration) (*Device, error) {
	if vid == 0 {
		vid = PodVID
	}
	if pid == 0 {
		pid = PodPID
	}
	ctx := gousb.NewContext()
	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("packet: opening USB %04x:%04x: %w", vid, pid, err)
	}
	if dev == nil {
		ctx.Close()
		return nil, fmt.Errorf("packet: no USB device %04x:%04x attached", vid, pid)
	}
	err = dev.SetAutoDetach(true)
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, err
	}
	intf, done, err := dev.DefaultInterface()
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, err
	}
	in, err := intf.InEndpoint(podEndpoint)
	if err != nil {
		done()
		dev.Close()
		ctx.Close()
		return nil, err
	}
	out, err := intf.OutEndpoint(podEndpoint)
	if err != nil {
		done()
		dev.Close()
		ctx.Close()
		return nil, err
	}
	conn := &usbConn{in: in, out: out, device: dev, ctx: ctx, done: done}
	return NewDeviceConn(conn, timeout), nil
}
