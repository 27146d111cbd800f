package hid

// Descriptor is the composite report descriptor. Field order matches the
// AppendTo layouts in report.go.
var Descriptor = concat(
	KeyboardDescriptor,
	MouseDescriptor,
	ConsumerDescriptor,
	SystemDescriptor,
	NKRODescriptor,
)

var KeyboardDescriptor = []byte{
	0x05, 0x01,       // Usage Page (Generic Desktop)
	0x09, 0x06,       // Usage (Keyboard)
	0xa1, 0x01,       // Collection (Application)
	0x85, IDKeyboard, // Report ID
	0x05, 0x07,       // Usage Page (Keyboard)
	0x19, 0xe0,       // Usage Minimum (LCtrl)
	0x29, 0xe7,       // Usage Maximum (RGui)
	0x15, 0x00,       // Logical Minimum (0)
	0x25, 0x01,       // Logical Maximum (1)
	0x75, 0x01,       // Report Size (1)
	0x95, 0x08,       // Report Count (8)
	0x81, 0x02,       // Input (Data,Var,Abs)
	0x95, 0x01,       // Report Count (1)
	0x75, 0x08,       // Report Size (8)
	0x81, 0x01,       // Input (Const) reserved
	0x05, 0x08,       // Usage Page (LEDs)
	0x19, 0x01,       // Usage Minimum (Num Lock)
	0x29, 0x05,       // Usage Maximum (Kana)
	0x95, 0x05,       // Report Count (5)
	0x75, 0x01,       // Report Size (1)
	0x91, 0x02,       // Output (Data,Var,Abs)
	0x95, 0x01,       // Report Count (1)
	0x75, 0x03,       // Report Size (3)
	0x91, 0x01,       // Output (Const)
	0x05, 0x07,       // Usage Page (Keyboard)
	0x19, 0x00,       // Usage Minimum (0)
	0x29, 0xff,       // Usage Maximum (255)
	0x15, 0x00,       // Logical Minimum (0)
	0x26, 0xff, 0x00, // Logical Maximum (255)
	0x95, BootKeys,   // Report Count
	0x75, 0x08,       // Report Size (8)
	0x81, 0x00,       // Input (Data,Array,Abs)
	0xc0,             // End Collection
}

var MouseDescriptor = []byte{
	0x05, 0x01,       // Usage Page (Generic Desktop)
	0x09, 0x02,       // Usage (Mouse)
	0xa1, 0x01,       // Collection (Application)
	0x85, IDMouse,    // Report ID
	0x09, 0x01,       // Usage (Pointer)
	0xa1, 0x00,       // Collection (Physical)
	0x05, 0x09,       // Usage Page (Button)
	0x19, 0x01,       // Usage Minimum (1)
	0x29, 0x08,       // Usage Maximum (8)
	0x15, 0x00,       // Logical Minimum (0)
	0x25, 0x01,       // Logical Maximum (1)
	0x95, 0x08,       // Report Count (8)
	0x75, 0x01,       // Report Size (1)
	0x81, 0x02,       // Input (Data,Var,Abs)
	0x05, 0x01,       // Usage Page (Generic Desktop)
	0x09, 0x30,       // Usage (X)
	0x09, 0x31,       // Usage (Y)
	0x09, 0x38,       // Usage (Wheel)
	0x15, 0x81,       // Logical Minimum (-127)
	0x25, 0x7f,       // Logical Maximum (127)
	0x75, 0x08,       // Report Size (8)
	0x95, 0x03,       // Report Count (3)
	0x81, 0x06,       // Input (Data,Var,Rel)
	0x05, 0x0c,       // Usage Page (Consumer)
	0x0a, 0x38, 0x02, // Usage (AC Pan)
	0x95, 0x01,       // Report Count (1)
	0x81, 0x06,       // Input (Data,Var,Rel)
	0xc0,             // End Collection
	0xc0,             // End Collection
}

var ConsumerDescriptor = []byte{
	0x05, 0x0c,       // Usage Page (Consumer)
	0x09, 0x01,       // Usage (Consumer Control)
	0xa1, 0x01,       // Collection (Application)
	0x85, IDConsumer, // Report ID
	0x15, 0x00,       // Logical Minimum (0)
	0x26, 0xff, 0x03, // Logical Maximum (0x3FF)
	0x19, 0x00,       // Usage Minimum (0)
	0x2a, 0xff, 0x03, // Usage Maximum (0x3FF)
	0x75, 0x10,       // Report Size (16)
	0x95, 0x04,       // Report Count (4)
	0x81, 0x00,       // Input (Data,Array,Abs)
	0xc0,             // End Collection
}

var SystemDescriptor = []byte{
	0x05, 0x01,       // Usage Page (Generic Desktop)
	0x09, 0x80,       // Usage (System Control)
	0xa1, 0x01,       // Collection (Application)
	0x85, IDSystem,   // Report ID
	0x15, 0x00,       // Logical Minimum (0)
	0x26, 0xb7, 0x00, // Logical Maximum (0xB7)
	0x19, 0x00,       // Usage Minimum (0)
	0x29, 0xb7,       // Usage Maximum (0xB7)
	0x75, 0x08,       // Report Size (8)
	0x95, 0x01,       // Report Count (1)
	0x81, 0x00,       // Input (Data,Array,Abs)
	0xc0,             // End Collection
}

var NKRODescriptor = []byte{
	0x05, 0x01,            // Usage Page (Generic Desktop)
	0x09, 0x06,            // Usage (Keyboard)
	0xa1, 0x01,            // Collection (Application)
	0x85, IDNKRO,          // Report ID
	0x05, 0x07,            // Usage Page (Keyboard)
	0x19, 0xe0,            // Usage Minimum (LCtrl)
	0x29, 0xe7,            // Usage Maximum (RGui)
	0x15, 0x00,            // Logical Minimum (0)
	0x25, 0x01,            // Logical Maximum (1)
	0x75, 0x01,            // Report Size (1)
	0x95, 0x08,            // Report Count (8)
	0x81, 0x02,            // Input (Data,Var,Abs)
	0x19, 0x00,            // Usage Minimum (0)
	0x29, NKROBytes*8 - 1, // Usage Maximum
	0x95, NKROBytes * 8,   // Report Count
	0x81, 0x02,            // Input (Data,Var,Abs)
	0xc0,                  // End Collection
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
