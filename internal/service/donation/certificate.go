package donation

import (
	"fmt"
	"time"
)

// CertificateID formats <program>-<donor number, 5 digits>-<yyyy><mm>.
func CertificateID(program string, donorNumber int64, donatedAt time.Time) string {
	return fmt.Sprintf("%s-%05d-%04d%02d", program, donorNumber, donatedAt.Year(), int(donatedAt.Month()))
}
