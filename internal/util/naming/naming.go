package naming

import (
	"fmt"
	"strings"
	"time"
)

const timestampLayout = "20060102150405"

// maxServerName is the Hetzner limit for server and SSH key names.
const maxServerName = 63

// BuildServer returns the name of the rescue-mode server used to import an image.
func BuildServer(imageKey string, now time.Time) string {
	return truncate(fmt.Sprintf("import-%s-%s", hostSafe(imageKey), now.UTC().Format(timestampLayout)))
}

// BuildSSHKey returns the name of the temporary SSH key for a build server.
func BuildSSHKey(serverName string) string {
	return truncate("key-" + serverName)
}

// ImportObjectKey returns the object key used to stage an image in S3 before import.
func ImportObjectKey(imageFile string, now time.Time) string {
	return fmt.Sprintf("import/%s/%s", now.UTC().Format(timestampLayout), imageFile)
}

// ChecksumFiles returns the checksum companions of file.
func ChecksumFiles(file string) []string {
	return []string{file + ".sha256", file + ".sha512"}
}

// SignatureFile returns the detached signature companion of file.
func SignatureFile(file string) string {
	return file + ".asc"
}

func hostSafe(s string) string {
	s = strings.ToLower(s)
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}

func truncate(s string) string {
	if len(s) > maxServerName {
		s = s[:maxServerName]
	}
	return strings.TrimRight(s, "-")
}
