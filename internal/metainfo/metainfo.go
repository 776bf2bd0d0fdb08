// Package metainfo は.torrentメタデータファイルの解析を提供する。
// カタログから取得した記述子バイト列からinfo-hashを導出するために使用する。
package metainfo

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"

	"github.com/zeebo/bencode"
)

// metaFile は.torrentファイルのトップレベル構造のうち必要な部分だけを写像する。
// info辞書はエンコード済みの生バイト列のまま取り出す。
// info-hashは元のバイト列に対するSHA-1であり、再エンコードすると
// 値が変わる可能性があるため。
type metaFile struct {
	Info bencode.RawMessage `bencode:"info"`
}

type infoDict struct {
	Name string `bencode:"name"`
}

// InfoHash は.torrentメタデータからinfo-hash（40桁の小文字16進）を導出する。
// bencodeとして解釈できない、またはinfo辞書を含まない場合はエラーを返す。
func InfoHash(meta []byte) (string, error) {
	var mf metaFile
	if err := bencode.DecodeBytes(meta, &mf); err != nil {
		return "", fmt.Errorf("torrentメタデータのデコードに失敗しました: %w", err)
	}
	if len(mf.Info) == 0 {
		return "", fmt.Errorf("torrentメタデータにinfo辞書が含まれていません")
	}

	sum := sha1.Sum(mf.Info)
	return hex.EncodeToString(sum[:]), nil
}

// Name はinfo辞書内の表示名を返す。存在しない場合は空文字列。
// カタログ側の名前を優先するため参考情報としてのみ使用する。
func Name(meta []byte) (string, error) {
	var mf metaFile
	if err := bencode.DecodeBytes(meta, &mf); err != nil {
		return "", fmt.Errorf("torrentメタデータのデコードに失敗しました: %w", err)
	}
	var info infoDict
	if err := bencode.DecodeBytes(mf.Info, &info); err != nil {
		return "", fmt.Errorf("info辞書のデコードに失敗しました: %w", err)
	}
	return info.Name, nil
}
