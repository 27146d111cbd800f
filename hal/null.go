package hal

// nullFlash is a board without usable flash. Storage stays disabled.
type nullFlash struct{}

func (nullFlash) SizeBytes() uint32                   { return 0 }
func (nullFlash) EraseBlockBytes() uint32             { return 0 }
func (nullFlash) ReadAt([]byte, uint32) (int, error)  { return 0, ErrNotImplemented }
func (nullFlash) WriteAt([]byte, uint32) (int, error) { return 0, ErrNotImplemented }
func (nullFlash) Erase(uint32, uint32) error          { return ErrNotImplemented }

// nullRawHID is a transport without a raw HID interface.
type nullRawHID struct{}

func (nullRawHID) Send([]byte) error        { return ErrNotImplemented }
func (nullRawHID) Recv([]byte) (int, error) { return 0, ErrNotImplemented }
