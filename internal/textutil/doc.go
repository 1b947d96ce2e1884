// Package textutil sanitizes user-supplied text before it reaches the filesystem.
package textutil
