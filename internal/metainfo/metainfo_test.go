package metainfo

import (
	"crypto/sha1"
	"encoding/hex"
	"testing"
)

// testMetaInfo はbencodeエンコード済みのinfo辞書部分。
const testMetaInfo = "d6:lengthi1024e4:name8:test.bin12:piece lengthi16384e6:pieces20:aaaaaaaaaaaaaaaaaaaae"

// testMeta はinfo辞書を含む最小の.torrentメタデータ。
const testMeta = "d8:announce24:http://tracker.test/anno4:info" + testMetaInfo + "e"

func TestInfoHash_MatchesSHA1OfRawInfoDict(t *testing.T) {
	got, err := InfoHash([]byte(testMeta))
	if err != nil {
		t.Fatalf("InfoHash がエラーを返した: %v", err)
	}

	// info-hashはinfo辞書の生バイト列に対するSHA-1
	sum := sha1.Sum([]byte(testMetaInfo))
	want := hex.EncodeToString(sum[:])
	if got != want {
		t.Errorf("InfoHash = %q, want %q", got, want)
	}
}

func TestInfoHash_IsFortyHexChars(t *testing.T) {
	got, err := InfoHash([]byte(testMeta))
	if err != nil {
		t.Fatalf("InfoHash がエラーを返した: %v", err)
	}
	if len(got) != 40 {
		t.Errorf("InfoHash の長さ = %d, want 40", len(got))
	}
	if _, err := hex.DecodeString(got); err != nil {
		t.Errorf("InfoHash が16進文字列でない: %q", got)
	}
}

func TestInfoHash_DiffersForDifferentInfo(t *testing.T) {
	other := "d4:infod6:lengthi2048e4:name9:other.bin12:piece lengthi16384e6:pieces20:bbbbbbbbbbbbbbbbbbbbee"

	h1, err := InfoHash([]byte(testMeta))
	if err != nil {
		t.Fatalf("InfoHash(testMeta) がエラーを返した: %v", err)
	}
	h2, err := InfoHash([]byte(other))
	if err != nil {
		t.Fatalf("InfoHash(other) がエラーを返した: %v", err)
	}
	if h1 == h2 {
		t.Error("異なるinfo辞書から同じinfo-hashが導出された")
	}
}

func TestInfoHash_InvalidBencode_ReturnsError(t *testing.T) {
	if _, err := InfoHash([]byte("not bencode at all")); err == nil {
		t.Error("不正なbencodeに対してエラーが返らなかった")
	}
}

func TestInfoHash_MissingInfoDict_ReturnsError(t *testing.T) {
	if _, err := InfoHash([]byte("d8:announce24:http://tracker.test/annoe")); err == nil {
		t.Error("info辞書なしのメタデータに対してエラーが返らなかった")
	}
}

func TestName_ReturnsDisplayName(t *testing.T) {
	got, err := Name([]byte(testMeta))
	if err != nil {
		t.Fatalf("Name がエラーを返した: %v", err)
	}
	if got != "test.bin" {
		t.Errorf("Name = %q, want %q", got, "test.bin")
	}
}
