package metafile

import (
	"crypto/sha1"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/zeebo/bencode"
)

// Junk files never belong in the payload: sidecars, artwork and leftovers
// from earlier runs.
var excludedFiles = regexp.MustCompile(`(?i)\.(ffindex|jpg|nfo|png|srt|torrent|txt)$`)

const (
	minPieceLength = 1 << 15 // 32 KiB
	maxPieceLength = 1 << 24 // 16 MiB
)

type metainfo struct {
	Announce     string   `bencode:"announce"`
	CreatedBy    string   `bencode:"created by,omitempty"`
	CreationDate int64    `bencode:"creation date,omitempty"`
	Info         infoDict `bencode:"info"`
}

type infoDict struct {
	Name        string      `bencode:"name"`
	PieceLength int64       `bencode:"piece length"`
	Pieces      string      `bencode:"pieces"`
	Private     int         `bencode:"private"`
	Source      string      `bencode:"source,omitempty"`
	Length      int64       `bencode:"length,omitempty"`
	Files       []fileEntry `bencode:"files,omitempty"`
}

type fileEntry struct {
	Length int64    `bencode:"length"`
	Path   []string `bencode:"path"`
}

// Builder hashes payloads into metainfo files.
type Builder struct {
	fs afero.Fs
}

// NewBuilder returns a builder reading payloads from fs.
func NewBuilder(fs afero.Fs) *Builder {
	return &Builder{fs: fs}
}

// Create hashes the payload at srcPath into a torrent at dstPath. An
// existing dstPath is reused untouched, so interrupted runs pick up where
// they left off.
func (b *Builder) Create(srcPath, dstPath, announce, source string) error {
	if ok, _ := afero.Exists(b.fs, dstPath); ok {
		log.WithFields(log.Fields{
			"torrent": filepath.Base(dstPath),
		}).Info("Reusing existing torrent")
		return nil
	}

	files, totalSize, err := b.collectFiles(srcPath)
	if err != nil {
		return err
	}

	pieceLength := pieceLengthFor(totalSize)
	pieces, err := b.hashPieces(srcPath, files, pieceLength)
	if err != nil {
		return err
	}

	meta := metainfo{
		Announce:     announce,
		CreationDate: time.Now().Unix(),
		Info: infoDict{
			Name:        filepath.Base(srcPath),
			PieceLength: pieceLength,
			Pieces:      pieces,
			Private:     1,
			Source:      source,
		},
	}
	if len(files) == 1 && files[0].rel == "" {
		meta.Info.Length = files[0].size
	} else {
		for _, f := range files {
			meta.Info.Files = append(meta.Info.Files, fileEntry{
				Length: f.size,
				Path:   strings.Split(f.rel, string(filepath.Separator)),
			})
		}
	}

	log.WithFields(log.Fields{
		"torrent":      filepath.Base(dstPath),
		"files":        len(files),
		"total_size":   totalSize,
		"piece_length": pieceLength,
	}).Info("Created torrent")

	return b.write(dstPath, &meta)
}

// Reuse derives a tracker-specific torrent from an existing base torrent by
// replacing the announce URL, source tag and private flag.
func (b *Builder) Reuse(basePath, dstPath, announce, source string) error {
	if ok, _ := afero.Exists(b.fs, dstPath); ok {
		return nil
	}

	data, err := afero.ReadFile(b.fs, basePath)
	if err != nil {
		return fmt.Errorf("reading base torrent: %w", err)
	}

	var meta metainfo
	if err := bencode.DecodeBytes(data, &meta); err != nil {
		return fmt.Errorf("decoding base torrent: %w", err)
	}

	meta.Announce = announce
	meta.Info.Source = source
	meta.Info.Private = 1
	meta.CreationDate = time.Now().Unix()

	log.WithFields(log.Fields{
		"base":    filepath.Base(basePath),
		"torrent": filepath.Base(dstPath),
	}).Info("Derived tracker torrent from base")

	return b.write(dstPath, &meta)
}

func (b *Builder) write(path string, meta *metainfo) error {
	data, err := bencode.EncodeBytes(meta)
	if err != nil {
		return fmt.Errorf("encoding torrent: %w", err)
	}
	if err := afero.WriteFile(b.fs, path, data, 0o644); err != nil {
		return fmt.Errorf("writing torrent: %w", err)
	}
	return nil
}

type payloadFile struct {
	abs  string
	rel  string // empty for a single-file payload
	size int64
}

// collectFiles lists the payload files in byte order. Directory payloads are
// walked recursively with junk files excluded; the listing is sorted so
// piece hashes are deterministic.
func (b *Builder) collectFiles(srcPath string) ([]payloadFile, int64, error) {
	info, err := b.fs.Stat(srcPath)
	if err != nil {
		return nil, 0, fmt.Errorf("statting payload: %w", err)
	}

	if !info.IsDir() {
		return []payloadFile{{abs: srcPath, size: info.Size()}}, info.Size(), nil
	}

	var files []payloadFile
	var total int64
	err = afero.Walk(b.fs, srcPath, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() || excludedFiles.MatchString(path) {
			return nil
		}
		rel, err := filepath.Rel(srcPath, path)
		if err != nil {
			return err
		}
		files = append(files, payloadFile{abs: path, rel: rel, size: fi.Size()})
		total += fi.Size()
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("walking payload: %w", err)
	}
	if len(files) == 0 {
		return nil, 0, fmt.Errorf("payload %s has no eligible files", srcPath)
	}
	sort.Slice(files, func(a, b int) bool { return files[a].rel < files[b].rel })
	return files, total, nil
}

// hashPieces concatenates the payload files and hashes fixed-size pieces.
func (b *Builder) hashPieces(srcPath string, files []payloadFile, pieceLength int64) (string, error) {
	var pieces strings.Builder
	buf := make([]byte, pieceLength)
	filled := 0

	for _, f := range files {
		r, err := b.fs.Open(f.abs)
		if err != nil {
			return "", fmt.Errorf("opening payload file: %w", err)
		}
		for {
			n, err := r.Read(buf[filled:])
			filled += n
			if filled == len(buf) {
				sum := sha1.Sum(buf)
				pieces.Write(sum[:])
				filled = 0
			}
			if err == io.EOF {
				break
			}
			if err != nil {
				r.Close()
				return "", fmt.Errorf("reading payload file: %w", err)
			}
		}
		r.Close()
	}
	if filled > 0 {
		sum := sha1.Sum(buf[:filled])
		pieces.Write(sum[:])
	}
	return pieces.String(), nil
}

// pieceLengthFor picks a power-of-two piece length aiming for roughly 1500
// pieces, clamped to the usual client-accepted range.
func pieceLengthFor(totalSize int64) int64 {
	length := int64(minPieceLength)
	for length < maxPieceLength && totalSize/length > 1500 {
		length <<= 1
	}
	return length
}

// SubstitutePasskey expands the {passkey} placeholder in an announce URL.
func SubstitutePasskey(announce, passkey string) string {
	return strings.ReplaceAll(announce, "{passkey}", passkey)
}
