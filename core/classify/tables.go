package classify

import "bytes"

// binaryExtensions are lowercase extensions never treated as text.
var binaryExtensions = map[string]struct{}{
	// executables and objects
	".exe": {}, ".dll": {}, ".so": {}, ".dylib": {}, ".a": {}, ".lib": {}, ".obj": {}, ".o": {},
	// images
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".bmp": {}, ".tiff": {}, ".ico": {}, ".webp": {},
	// audio and video
	".mp3": {}, ".wav": {}, ".flac": {}, ".aac": {}, ".ogg": {}, ".mp4": {}, ".avi": {}, ".mkv": {}, ".mov": {},
	// documents
	".pdf": {}, ".doc": {}, ".docx": {}, ".xls": {}, ".xlsx": {}, ".ppt": {}, ".pptx": {},
	// archives
	".zip": {}, ".tar": {}, ".gz": {}, ".bz2": {}, ".xz": {}, ".7z": {}, ".rar": {},
	// data
	".bin": {}, ".dat": {}, ".db": {}, ".sqlite": {}, ".sqlite3": {},
	// fonts
	".ttf": {}, ".otf": {}, ".woff": {}, ".woff2": {}, ".eot": {},
	// bytecode
	".pyc": {}, ".pyo": {}, ".class": {}, ".jar": {}, ".war": {},
}

// signature is a magic-number prefix identifying a binary format.
type signature struct {
	name   string
	prefix []byte
}

var signatures = []signature{
	{"png", []byte("\x89PNG")},
	{"jpeg", []byte("\xff\xd8\xff")},
	{"gif", []byte("GIF8")},
	{"ico", []byte("\x00\x00\x01\x00")},
	{"bmp", []byte("BM")},
	{"zip", []byte("PK\x03\x04")},
	{"gzip", []byte("\x1f\x8b")},
	{"elf", []byte("\x7fELF")},
	{"mz", []byte("MZ")},
	{"java-class", []byte("\xca\xfe\xba\xbe")},
	{"pdf", []byte("%PDF")},
}

// IsBinaryExtension reports whether the lowercase ext (with leading dot) is blacklisted.
func IsBinaryExtension(ext string) bool {
	_, ok := binaryExtensions[ext]
	return ok
}

// matchSignature returns the name of the first signature the sample starts with.
func matchSignature(sample []byte) (string, bool) {
	for _, sig := range signatures {
		if bytes.HasPrefix(sample, sig.prefix) {
			return sig.name, true
		}
	}
	return "", false
}
