package llm

import (
	"context"
	"strings"
)

// CannedProvider is the provider name reported for canned answers.
const CannedProvider = "fallback"

// CannedTopic answers any question containing one of Keywords.
type CannedTopic struct {
	Keywords []string
	Answer   string
}

var DefaultCannedTopics = []CannedTopic{
	{
		Keywords: []string{"biaya", "spp", "bayar", "uang sekolah", "fee", "tuition"},
		Answer:   "Informasi biaya sekolah dapat dilihat di halaman Biaya Pendidikan atau ditanyakan langsung ke bagian tata usaha pada jam kerja.",
	},
	{
		Keywords: []string{"ppdb", "pendaftaran", "daftar", "siswa baru", "admission"},
		Answer:   "Informasi pendaftaran peserta didik baru (PPDB) tersedia di halaman PPDB. Silakan cek jadwal dan persyaratan terbaru di sana.",
	},
	{
		Keywords: []string{"jadwal", "ujian", "kalender", "libur", "schedule"},
		Answer:   "Jadwal kegiatan dan ujian diumumkan melalui halaman Pengumuman dan kalender akademik sekolah.",
	},
	{
		Keywords: []string{"ekstrakurikuler", "ekskul", "kegiatan", "lomba"},
		Answer:   "Daftar kegiatan dan ekstrakurikuler dapat dilihat di halaman Kegiatan sekolah.",
	},
	{
		Keywords: []string{"alamat", "lokasi", "kontak", "telepon", "email"},
		Answer:   "Alamat dan kontak sekolah tercantum di halaman Kontak Kami.",
	},
}

const defaultCannedAnswer = "Maaf, layanan asisten sedang tidak tersedia. Silakan coba beberapa saat lagi atau hubungi sekolah melalui halaman Kontak Kami."

// CannedCompleter never fails: it picks a hardcoded answer by keyword topic of
// the last user message. It belongs at the end of a Chain.
type CannedCompleter struct {
	topics   []CannedTopic
	fallback string
}

func NewCannedCompleter(topics []CannedTopic) *CannedCompleter {
	if topics == nil {
		topics = DefaultCannedTopics
	}
	return &CannedCompleter{topics: topics, fallback: defaultCannedAnswer}
}

func (c *CannedCompleter) Name() string { return CannedProvider }

func (c *CannedCompleter) TryComplete(_ context.Context, messages []Message, _ Options) (*Answer, error) {
	return &Answer{Text: c.Match(lastUserMessage(messages)), Provider: CannedProvider}, nil
}

// Match returns the answer of the first topic with a keyword in question.
func (c *CannedCompleter) Match(question string) string {
	lower := strings.ToLower(question)
	for _, t := range c.topics {
		for _, kw := range t.Keywords {
			if strings.Contains(lower, kw) {
				return t.Answer
			}
		}
	}
	return c.fallback
}
