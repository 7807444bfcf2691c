package usb

// Device is the minimal interface an emulated device implements.
// It only handles non-EP0 (interrupt) transfers; enumeration on EP0 is
// answered from the descriptor.
type Device interface {
	// HandleTransfer processes an interrupt transfer.
	// ep is the endpoint number (without direction). dir is usbip.DirIn or usbip.DirOut.
	// For IN transfers, return the payload to send; for OUT, consume 'out' and return nil.
	HandleTransfer(ep uint32, dir uint32, out []byte) []byte
	GetDescriptor() *Descriptor
}
