// Package linux opens block devices and regular files on Linux. Block
// devices are sized with ioctls and presented as the single namespace of
// an emulated controller; asynchronous I/O goes through io_uring when the
// kernel offers it and falls back to the software queues otherwise.
package linux
