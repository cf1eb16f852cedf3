//go:build darwin

package axhost

/*
#cgo CFLAGS: -x objective-c
#cgo LDFLAGS: -framework ApplicationServices -framework CoreFoundation -framework CoreGraphics
#include <ApplicationServices/ApplicationServices.h>
#include <CoreFoundation/CoreFoundation.h>
#include <CoreGraphics/CoreGraphics.h>
#include <stdlib.h>
#include <string.h>

extern AXError _AXUIElementGetWindow(AXUIElementRef element, CGWindowID *out);

// CGS private API, stable across recent releases; the only way to read the
// active Mission-Control space without a full Spaces daemon client.
extern int CGSMainConnectionID(void);
extern uint64_t CGSManagedDisplayGetCurrentSpace(int cid, CFStringRef display);

typedef struct {
	uint32_t wid;
	int32_t  pid;
	double   x, y, w, h;
	char     app[128];
	char     title[256];
} wm_window;

static void wm_copy_string(CFDictionaryRef dict, CFStringRef key, char *out, size_t cap) {
	out[0] = 0;
	CFStringRef value = CFDictionaryGetValue(dict, key);
	if (value != NULL) {
		CFStringGetCString(value, out, cap, kCFStringEncodingUTF8);
	}
}

// wm_list_windows fills *out (malloc'd, caller frees) with the on-screen
// layer-0 windows in front-to-back order and returns the count.
static int wm_list_windows(wm_window **out) {
	CFArrayRef list = CGWindowListCopyWindowInfo(
		kCGWindowListOptionOnScreenOnly | kCGWindowListExcludeDesktopElements,
		kCGNullWindowID);
	if (list == NULL) {
		*out = NULL;
		return 0;
	}
	CFIndex total = CFArrayGetCount(list);
	wm_window *wins = malloc(sizeof(wm_window) * (total > 0 ? total : 1));
	int n = 0;
	for (CFIndex i = 0; i < total; i++) {
		CFDictionaryRef dict = CFArrayGetValueAtIndex(list, i);
		int layer = -1;
		CFNumberRef num = CFDictionaryGetValue(dict, kCGWindowLayer);
		if (num == NULL || !CFNumberGetValue(num, kCFNumberIntType, &layer) || layer != 0) {
			continue;
		}
		wm_window *w = &wins[n];
		memset(w, 0, sizeof(*w));
		num = CFDictionaryGetValue(dict, kCGWindowNumber);
		if (num == NULL || !CFNumberGetValue(num, kCFNumberSInt32Type, &w->wid)) {
			continue;
		}
		num = CFDictionaryGetValue(dict, kCGWindowOwnerPID);
		if (num == NULL || !CFNumberGetValue(num, kCFNumberSInt32Type, &w->pid)) {
			continue;
		}
		CFDictionaryRef bounds = CFDictionaryGetValue(dict, kCGWindowBounds);
		CGRect rect;
		if (bounds == NULL || !CGRectMakeWithDictionaryRepresentation(bounds, &rect)) {
			continue;
		}
		w->x = rect.origin.x;
		w->y = rect.origin.y;
		w->w = rect.size.width;
		w->h = rect.size.height;
		wm_copy_string(dict, kCGWindowOwnerName, w->app, sizeof(w->app));
		wm_copy_string(dict, kCGWindowName, w->title, sizeof(w->title));
		n++;
	}
	CFRelease(list);
	*out = wins;
	return n;
}

static const void *wm_ax_window(pid_t pid, uint32_t wid) {
	AXUIElementRef app = AXUIElementCreateApplication(pid);
	if (app == NULL) {
		return NULL;
	}
	CFArrayRef windows = NULL;
	const void *found = NULL;
	if (AXUIElementCopyAttributeValue(app, kAXWindowsAttribute, (CFTypeRef *)&windows) == kAXErrorSuccess && windows != NULL) {
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
	}
	CFRelease(app);
	return found;
}

static uint32_t wm_focused_window(void) {
	AXUIElementRef system = AXUIElementCreateSystemWide();
	if (system == NULL) {
		return 0;
	}
	uint32_t wid = 0;
	CFTypeRef app = NULL;
	if (AXUIElementCopyAttributeValue(system, kAXFocusedApplicationAttribute, &app) == kAXErrorSuccess && app != NULL) {
		CFTypeRef win = NULL;
		if (AXUIElementCopyAttributeValue((AXUIElementRef)app, kAXFocusedWindowAttribute, &win) == kAXErrorSuccess && win != NULL) {
			CGWindowID id = 0;
			if (_AXUIElementGetWindow((AXUIElementRef)win, &id) == kAXErrorSuccess) {
				wid = id;
			}
			CFRelease(win);
		}
		CFRelease(app);
	}
	CFRelease(system);
	return wid;
}

static int wm_focus_window(pid_t pid, uint32_t wid) {
	const void *win = wm_ax_window(pid, wid);
	if (win == NULL) {
		return -1;
	}
	AXUIElementRef ref = (AXUIElementRef)win;
	AXError err = AXUIElementPerformAction(ref, kAXRaiseAction);
	AXUIElementRef app = AXUIElementCreateApplication(pid);
	if (app != NULL) {
		AXUIElementSetAttributeValue(app, kAXFrontmostAttribute, kCFBooleanTrue);
		CFRelease(app);
	}
	CFRelease(ref);
	return err == kAXErrorSuccess ? 0 : (int)err;
}

static int wm_window_resizable(pid_t pid, uint32_t wid) {
	const void *win = wm_ax_window(pid, wid);
	if (win == NULL) {
		return 0;
	}
	Boolean settable = false;
	AXUIElementIsAttributeSettable((AXUIElementRef)win, kAXSizeAttribute, &settable);
	CFRelease((CFTypeRef)win);
	return settable ? 1 : 0;
}

// wm_window_tabbed reports whether the window hosts a native tab group.
static int wm_window_tabbed(pid_t pid, uint32_t wid) {
	const void *win = wm_ax_window(pid, wid);
	if (win == NULL) {
		return 0;
	}
	int tabbed = 0;
	CFArrayRef children = NULL;
	if (AXUIElementCopyAttributeValue((AXUIElementRef)win, kAXChildrenAttribute, (CFTypeRef *)&children) == kAXErrorSuccess && children != NULL) {
		CFIndex count = CFArrayGetCount(children);
		for (CFIndex i = 0; i < count; i++) {
			AXUIElementRef child = (AXUIElementRef)CFArrayGetValueAtIndex(children, i);
			CFStringRef role = NULL;
			if (AXUIElementCopyAttributeValue(child, kAXRoleAttribute, (CFTypeRef *)&role) == kAXErrorSuccess && role != NULL) {
				if (CFStringCompare(role, CFSTR("AXTabGroup"), 0) == kCFCompareEqualTo) {
					tabbed = 1;
				}
				CFRelease(role);
			}
			if (tabbed) {
				break;
			}
		}
		CFRelease(children);
	}
	CFRelease((CFTypeRef)win);
	return tabbed;
}

static void wm_main_screen(double *x, double *y, double *w, double *h, uint32_t *display) {
	CGDirectDisplayID id = CGMainDisplayID();
	CGRect rect = CGDisplayBounds(id);
	*x = rect.origin.x;
	*y = rect.origin.y;
	*w = rect.size.width;
	*h = rect.size.height;
	*display = id;
}

static uint64_t wm_active_space(void) {
	CFUUIDRef uuid = CGDisplayCreateUUIDFromDisplayID(CGMainDisplayID());
	if (uuid == NULL) {
		return 0;
	}
	CFStringRef name = CFUUIDCreateString(NULL, uuid);
	CFRelease(uuid);
	if (name == NULL) {
		return 0;
	}
	uint64_t space = CGSManagedDisplayGetCurrentSpace(CGSMainConnectionID(), name);
	CFRelease(name);
	return space;
}
*/
import "C"
import (
	"errors"
	"fmt"
	"os/exec"
	"unsafe"

	"github.com/vellum-wm/vellum/internal/ax"
	"github.com/vellum-wm/vellum/internal/geo"
	"github.com/vellum-wm/vellum/internal/host"
)

// Host is the darwin implementation of host.Host.
type Host struct {
	poll *poller
}

// New builds the darwin host and starts its window differ. Fails when the
// process lacks Accessibility permission, since nothing else would work.
func New() (*Host, error) {
	if !ax.Trusted() {
		return nil, ErrNotTrusted
	}
	h := &Host{}
	h.poll = newPoller(readSnapshot, func(w winInfo) host.Window {
		return &axWindow{h: h, wid: w.WID, pid: w.PID}
	})
	h.poll.start()
	return h, nil
}

// Close stops the window differ.
func (h *Host) Close() { h.poll.shutdown() }

// readSnapshot reads the live window list and the focused window id.
func readSnapshot() ([]winInfo, uint32) {
	var raw *C.wm_window
	n := int(C.wm_list_windows(&raw))
	var wins []winInfo
	if raw != nil {
		slice := unsafe.Slice(raw, n)
		wins = make([]winInfo, 0, n)
		for _, w := range slice {
			wins = append(wins, winInfo{
				WID:   uint32(w.wid),
				PID:   int32(w.pid),
				App:   C.GoString(&w.app[0]),
				Title: C.GoString(&w.title[0]),
				Frame: geo.Rect{X: float64(w.x), Y: float64(w.y), W: float64(w.w), H: float64(w.h)},
			})
		}
		C.free(unsafe.Pointer(raw))
	}
	return wins, uint32(C.wm_focused_window())
}

// axWindow is a weak handle: identity is the wid, everything else is read
// from the latest snapshot, and reads fail once the window leaves it.
type axWindow struct {
	h   *Host
	wid uint32
	pid int32
}

// ID implements host.Window.
func (w *axWindow) ID() (uint32, error) {
	if !w.h.poll.known(w.wid) {
		return 0, fmt.Errorf("window %d is gone", w.wid)
	}
	return w.wid, nil
}

// PID implements host.Window.
func (w *axWindow) PID() int32 { return w.pid }

// App implements host.Window.
func (w *axWindow) App() string {
	if info, ok := w.h.poll.info(w.wid); ok {
		return info.App
	}
	return ""
}

// Title implements host.Window.
func (w *axWindow) Title() string {
	if info, ok := w.h.poll.info(w.wid); ok {
		return info.Title
	}
	return ""
}

// Frame implements host.Window.
func (w *axWindow) Frame() (geo.Rect, error) {
	info, ok := w.h.poll.info(w.wid)
	if !ok {
		return geo.Rect{}, fmt.Errorf("window %d is gone", w.wid)
	}
	return info.Frame, nil
}

// Focus implements host.Window.
func (w *axWindow) Focus() error {
	if rc := C.wm_focus_window(C.pid_t(w.pid), C.uint32_t(w.wid)); rc != 0 {
		return fmt.Errorf("focus window %d: AX error %d", w.wid, int(rc))
	}
	return nil
}

// Maximizable implements host.Window.
func (w *axWindow) Maximizable() bool {
	return C.wm_window_resizable(C.pid_t(w.pid), C.uint32_t(w.wid)) != 0
}

// Tabbed implements host.Window.
func (w *axWindow) Tabbed() bool {
	return C.wm_window_tabbed(C.pid_t(w.pid), C.uint32_t(w.wid)) != 0
}

// axScreen is the main display.
type axScreen struct {
	id    uint64
	frame geo.Rect
}

// ID implements host.Screen.
func (s *axScreen) ID() uint64 { return s.id }

// Frame implements host.Screen.
func (s *axScreen) Frame() geo.Rect { return s.frame }

func mainScreenFrame() (geo.Rect, uint64) {
	var x, y, w, h C.double
	var display C.uint32_t
	C.wm_main_screen(&x, &y, &w, &h, &display)
	return geo.Rect{X: float64(x), Y: float64(y), W: float64(w), H: float64(h)}, uint64(display)
}

// FocusedWindow implements host.Host.
func (h *Host) FocusedWindow() host.Window {
	wid := uint32(C.wm_focused_window())
	if wid == 0 {
		return nil
	}
	return h.WindowByID(wid)
}

// WindowByID implements host.Host.
func (h *Host) WindowByID(wid uint32) host.Window {
	info, ok := h.poll.info(wid)
	if !ok {
		return nil
	}
	return &axWindow{h: h, wid: info.WID, pid: info.PID}
}

// MainScreen implements host.Host.
func (h *Host) MainScreen() host.Screen {
	frame, id := mainScreenFrame()
	return &axScreen{id: id, frame: frame}
}

// ActiveSpace implements host.Host.
func (h *Host) ActiveSpace(host.Screen) (host.Space, error) {
	space := uint64(C.wm_active_space())
	if space == 0 {
		return 0, errors.New("axhost: no active space")
	}
	return host.Space(space), nil
}

// NewWindowFilter implements host.Host.
func (h *Host) NewWindowFilter() host.WindowFilter {
	return h.poll.newFilter()
}

// NewWindowWatcher implements host.Host.
func (h *Host) NewWindowWatcher(w host.Window, fn func()) host.WindowWatcher {
	wid := uint32(0)
	if id, err := w.ID(); err == nil {
		wid = id
	}
	return h.poll.newWatcher(wid, fn)
}

// NewScreenWatcher implements host.Host.
func (h *Host) NewScreenWatcher(fn func()) host.ScreenWatcher {
	return newScreenPoller(func() geo.Rect {
		frame, _ := mainScreenFrame()
		return frame
	}, fn)
}

// LaunchOrFocus implements host.Host.
func (h *Host) LaunchOrFocus(app string) {
	// `open -a` activates a running app and launches it otherwise, the same
	// contract the engine expects.
	_ = exec.Command("open", "-a", app).Start()
}

// Spawn implements host.Host.
func (h *Host) Spawn(argv []string) error {
	if len(argv) == 0 {
		return errors.New("axhost: empty argv")
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawn %s: %w", argv[0], err)
	}
	// Detach; the child's exit status is not ours to collect.
	return cmd.Process.Release()
}
