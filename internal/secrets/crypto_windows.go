//go:build windows

package secrets

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

// entropy binds sealed values to this application on top of the machine key.
var entropy = []byte("cms-dispatch/secrets/v1")

func encrypt(plain []byte) ([]byte, error) {
	return dpapi(plain, func(in, ent, out *windows.DataBlob) error {
		return windows.CryptProtectData(in, nil, ent, 0, nil,
			windows.CRYPTPROTECT_LOCAL_MACHINE|windows.CRYPTPROTECT_UI_FORBIDDEN, out)
	})
}

func decrypt(sealed []byte) ([]byte, error) {
	return dpapi(sealed, func(in, ent, out *windows.DataBlob) error {
		return windows.CryptUnprotectData(in, nil, ent, 0, nil,
			windows.CRYPTPROTECT_UI_FORBIDDEN, out)
	})
}

func dpapi(data []byte, call func(in, ent, out *windows.DataBlob) error) ([]byte, error) {
	in := blob(data)
	ent := blob(entropy)
	var out windows.DataBlob
	if err := call(&in, &ent, &out); err != nil {
		return nil, err
	}
	defer windows.LocalFree(windows.Handle(unsafe.Pointer(out.Data)))

	if out.Size == 0 || out.Data == nil {
		return []byte{}, nil
	}
	return append([]byte(nil), unsafe.Slice(out.Data, out.Size)...), nil
}

func blob(b []byte) windows.DataBlob {
	if len(b) == 0 {
		return windows.DataBlob{}
	}
	return windows.DataBlob{Size: uint32(len(b)), Data: &b[0]}
}
