//go:build darwin

package desktop

/*
#cgo CFLAGS: -x objective-c
#cgo LDFLAGS: -framework Cocoa -framework ApplicationServices -framework CoreGraphics
#import <Cocoa/Cocoa.h>
#import <ApplicationServices/ApplicationServices.h>
#import <CoreGraphics/CoreGraphics.h>
#include <stdlib.h>

int checkAccessibility() {
    NSDictionary *options = @{(__bridge NSString *)kAXTrustedCheckOptionPrompt: @NO};
    return AXIsProcessTrustedWithOptions((__bridge CFDictionaryRef)options) ? 1 : 0;
}

int checkScreenRecording() {
    if (@available(macOS 10.15, *)) {
        CFArrayRef windowList = CGWindowListCopyWindowInfo(
            kCGWindowListOptionOnScreenOnly | kCGWindowListExcludeDesktopElements,
            kCGNullWindowID
        );
        if (windowList == NULL) {
            return 0;
        }

        CFIndex count = CFArrayGetCount(windowList);
        int hasNames = 0;
        for (CFIndex i = 0; i < count; i++) {
            CFDictionaryRef window = (CFDictionaryRef)CFArrayGetValueAtIndex(windowList, i);
            CFStringRef name = (CFStringRef)CFDictionaryGetValue(window, kCGWindowName);
            if (name != NULL && CFStringGetLength(name) > 0) {
                hasNames = 1;
                break;
            }
        }
        CFRelease(windowList);
        return (count == 0 || hasNames) ? 1 : 0;
    }
    return 1;
}

void openPrivacyPane(const char *pane) {
    NSString *url = [NSString stringWithFormat:@"x-apple.systempreferences:com.apple.preference.security?%s", pane];
    [[NSWorkspace sharedWorkspace] openURL:[NSURL URLWithString:url]];
}
*/
import "C"

import "unsafe"

// CheckPermissions 检查辅助功能和屏幕录制权限，不触发系统弹窗
func CheckPermissions() PermissionStatus {
	return PermissionStatus{
		Accessibility:   C.checkAccessibility() == 1,
		ScreenRecording: C.checkScreenRecording() == 1,
	}
}

// OpenSettings 打开缺少权限对应的系统设置页面
func OpenSettings(status PermissionStatus) {
	open := func(pane string) {
		cs := C.CString(pane)
		defer C.free(unsafe.Pointer(cs))
		C.openPrivacyPane(cs)
	}
	if !status.Accessibility {
		open("Privacy_Accessibility")
	}
	if !status.ScreenRecording {
		open("Privacy_ScreenCapture")
	}
}
