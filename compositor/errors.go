package compositor

import "fmt"

// Interface names used in protocol errors.
const (
	InterfaceSurface        = "wl_surface"
	InterfaceSubcompositor  = "wl_subcompositor"
	InterfaceSubsurface     = "wl_subsurface"
	InterfaceSyncobjManager = "wp_linux_drm_syncobj_manager_v1"
	InterfaceSyncobjSurface = "wp_linux_drm_syncobj_surface_v1"
	InterfaceFifoManager    = "wp_fifo_manager_v1"
	InterfaceFifo           = "wp_fifo_v1"
	InterfaceTransaction    = "wp_transaction_v1"
	InterfaceDisplay        = "wl_display"
)

// wl_surface errors.
const (
	SurfaceErrorInvalidScale uint32 = iota
	SurfaceErrorInvalidTransform
	SurfaceErrorInvalidSize
	SurfaceErrorInvalidOffset
	SurfaceErrorDefunctRoleObject
)

// wl_subcompositor errors.
const (
	SubcompositorErrorBadSurface uint32 = iota
	SubcompositorErrorBadParent
)

// wl_subsurface errors.
const (
	SubsurfaceErrorBadSurface uint32 = 0
)

// wp_linux_drm_syncobj_manager_v1 errors.
const (
	SyncobjManagerErrorSurfaceExists uint32 = iota
	SyncobjManagerErrorInvalidTimeline
)

// wp_linux_drm_syncobj_surface_v1 errors.
const (
	SyncobjSurfaceErrorNoSurface uint32 = iota + 1
	SyncobjSurfaceErrorUnsupportedBuffer
	SyncobjSurfaceErrorNoBuffer
	SyncobjSurfaceErrorNoAcquirePoint
	SyncobjSurfaceErrorNoReleasePoint
	SyncobjSurfaceErrorConflictingPoints
)

// wp_fifo_manager_v1 and wp_fifo_v1 errors.
const (
	FifoManagerErrorAlreadyExists uint32 = 0
	FifoErrorSurfaceDestroyed     uint32 = 0
)

// wp_transaction_v1 errors.
const (
	TransactionErrorAlreadyUsed uint32 = iota
	TransactionErrorDefunct
)

// wl_display errors.
const (
	DisplayErrorInvalidObject uint32 = iota
	DisplayErrorInvalidMethod
	DisplayErrorNoMemory
	DisplayErrorImplementation
)

// ProtocolError is a fatal error caused by a client breaking the rules
// of the protocol. The request that caused it has had no effect.
type ProtocolError struct {
	Interface string
	Code      uint32
	Message   string
}

func protocolError(iface string, code uint32, format string, args ...any) *ProtocolError {
	return &ProtocolError{
		Interface: iface,
		Code:      code,
		Message:   fmt.Sprintf(format, args...),
	}
}

func (err *ProtocolError) Error() string {
	return fmt.Sprintf("%v error %v: %v", err.Interface, err.Code, err.Message)
}
