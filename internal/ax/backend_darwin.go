//go:build darwin

package ax

/*
#cgo CFLAGS: -x objective-c
#cgo LDFLAGS: -framework ApplicationServices -framework CoreFoundation -framework CoreGraphics
#include <ApplicationServices/ApplicationServices.h>
#include <CoreFoundation/CoreFoundation.h>
#include <CoreGraphics/CoreGraphics.h>

// Private but stable since 10.10; the only way to map an AX element to the
// CGWindowID the rest of the system uses.
extern AXError _AXUIElementGetWindow(AXUIElementRef element, CGWindowID *out);

static const void *ax_open_app(pid_t pid, double timeout_sec, int *enhanced) {
	AXUIElementRef app = AXUIElementCreateApplication(pid);
	if (app == NULL) {
		return NULL;
	}
	AXUIElementSetMessagingTimeout(app, (float)timeout_sec);
	*enhanced = 0;
	CFTypeRef value = NULL;
	if (AXUIElementCopyAttributeValue(app, CFSTR("AXEnhancedUserInterface"), &value) == kAXErrorSuccess && value != NULL) {
		if (value == kCFBooleanTrue) {
			*enhanced = 1;
			AXUIElementSetAttributeValue(app, CFSTR("AXEnhancedUserInterface"), kCFBooleanFalse);
		}
		CFRelease(value);
	}
	return app;
}

static void ax_close_app(const void *app, int restore_enhanced) {
	AXUIElementRef ref = (AXUIElementRef)app;
	if (restore_enhanced) {
		AXUIElementSetAttributeValue(ref, CFSTR("AXEnhancedUserInterface"), kCFBooleanTrue);
	}
	CFRelease(ref);
}

static const void *ax_find_window(const void *app, uint32_t wid) {
	CFArrayRef windows = NULL;
	if (AXUIElementCopyAttributeValue((AXUIElementRef)app, kAXWindowsAttribute, (CFTypeRef *)&windows) != kAXErrorSuccess || windows == NULL) {
		return NULL;
	}
	const void *found = NULL;
	CFIndex count = CFArrayGetCount(windows);
	for (CFIndex i = 0; i < count; i++) {
		AXUIElementRef win = (AXUIElementRef)CFArrayGetValueAtIndex(windows, i);
		CGWindowID id = 0;
		if (_AXUIElementGetWindow(win, &id) == kAXErrorSuccess && id == wid) {
			found = CFRetain(win);
			break;
		}
	}
	CFRelease(windows);
	return found;
}

static int ax_window_frame(const void *win, double *x, double *y, double *w, double *h) {
	AXUIElementRef ref = (AXUIElementRef)win;
	CFTypeRef value = NULL;
	CGPoint pos;
	CGSize size;
	if (AXUIElementCopyAttributeValue(ref, kAXPositionAttribute, &value) != kAXErrorSuccess || value == NULL) {
		return -1;
	}
	AXValueGetValue((AXValueRef)value, kAXValueTypeCGPoint, &pos);
	CFRelease(value);
	if (AXUIElementCopyAttributeValue(ref, kAXSizeAttribute, &value) != kAXErrorSuccess || value == NULL) {
		return -1;
	}
	AXValueGetValue((AXValueRef)value, kAXValueTypeCGSize, &size);
	CFRelease(value);
	*x = pos.x;
	*y = pos.y;
	*w = size.width;
	*h = size.height;
	return 0;
}

static int ax_set_size(const void *win, double w, double h) {
	CGSize size = CGSizeMake(w, h);
	AXValueRef value = AXValueCreate(kAXValueTypeCGSize, &size);
	AXError err = AXUIElementSetAttributeValue((AXUIElementRef)win, kAXSizeAttribute, value);
	CFRelease(value);
	return err == kAXErrorSuccess ? 0 : (int)err;
}

static int ax_set_pos(const void *win, double x, double y) {
	CGPoint pos = CGPointMake(x, y);
	AXValueRef value = AXValueCreate(kAXValueTypeCGPoint, &pos);
	AXError err = AXUIElementSetAttributeValue((AXUIElementRef)win, kAXPositionAttribute, value);
	CFRelease(value);
	return err == kAXErrorSuccess ? 0 : (int)err;
}

static void ax_release(const void *ref) {
	CFRelease((CFTypeRef)ref);
}

static int ax_trusted(void) {
	return AXIsProcessTrusted() ? 1 : 0;
}
*/
import "C"
import (
	"fmt"
	"time"
	"unsafe"

	"github.com/vellum-wm/vellum/internal/geo"
)

type darwinBackend struct {
	timeout time.Duration
}

// NewBackend returns the Accessibility backend. timeout bounds every AX
// round-trip per application; a hung app costs at most timeout per call.
func NewBackend(timeout time.Duration) Backend {
	return &darwinBackend{timeout: timeout}
}

// Trusted reports whether the process has Accessibility permission.
func Trusted() bool {
	return C.ax_trusted() != 0
}

func (b *darwinBackend) OpenApp(pid int32) (App, error) {
	var enhanced C.int
	ref := C.ax_open_app(C.pid_t(pid), C.double(b.timeout.Seconds()), &enhanced)
	if ref == nil {
		return nil, fmt.Errorf("no accessibility element for pid %d", pid)
	}
	return &darwinApp{
		ref:      ref,
		enhanced: enhanced != 0,
		windows:  make(map[uint32]unsafe.Pointer),
	}, nil
}

type darwinApp struct {
	ref      unsafe.Pointer
	enhanced bool
	windows  map[uint32]unsafe.Pointer
}

func (a *darwinApp) window(wid uint32) (unsafe.Pointer, error) {
	if ref, ok := a.windows[wid]; ok {
		return ref, nil
	}
	ref := C.ax_find_window(a.ref, C.uint32_t(wid))
	if ref == nil {
		return nil, fmt.Errorf("window %d not found", wid)
	}
	a.windows[wid] = ref
	return ref, nil
}

func (a *darwinApp) Frame(wid uint32) (geo.Rect, error) {
	ref, err := a.window(wid)
	if err != nil {
		return geo.Rect{}, err
	}
	var x, y, w, h C.double
	if C.ax_window_frame(ref, &x, &y, &w, &h) != 0 {
		return geo.Rect{}, fmt.Errorf("window %d: frame read failed", wid)
	}
	return geo.Rect{X: float64(x), Y: float64(y), W: float64(w), H: float64(h)}, nil
}

func (a *darwinApp) SetFrame(wid uint32, r geo.Rect) error {
	ref, err := a.window(wid)
	if err != nil {
		return err
	}
	// Size, position, size: macOS clamps the position against the current
	// size, then may clamp the size against the screen edge. The second
	// size pass recovers.
	var firstErr error
	if rc := C.ax_set_size(ref, C.double(r.W), C.double(r.H)); rc != 0 {
		firstErr = fmt.Errorf("window %d: set size failed (%d)", wid, int(rc))
	}
	if rc := C.ax_set_pos(ref, C.double(r.X), C.double(r.Y)); rc != 0 && firstErr == nil {
		firstErr = fmt.Errorf("window %d: set position failed (%d)", wid, int(rc))
	}
	if rc := C.ax_set_size(ref, C.double(r.W), C.double(r.H)); rc != 0 && firstErr == nil {
		firstErr = fmt.Errorf("window %d: set size failed (%d)", wid, int(rc))
	}
	return firstErr
}

func (a *darwinApp) SetPosition(wid uint32, x, y float64) error {
	ref, err := a.window(wid)
	if err != nil {
		return err
	}
	if rc := C.ax_set_pos(ref, C.double(x), C.double(y)); rc != 0 {
		return fmt.Errorf("window %d: set position failed (%d)", wid, int(rc))
	}
	return nil
}

func (a *darwinApp) Close() {
	for _, ref := range a.windows {
		C.ax_release(ref)
	}
	C.ax_close_app(a.ref, boolToInt(a.enhanced))
}

func boolToInt(b bool) C.int {
	if b {
		return 1
	}
	return 0
}
