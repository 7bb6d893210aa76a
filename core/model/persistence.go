package model

import (
	"io"
	"os"

	"github.com/gelato-ml/sorvete/pkg/errors"
)

// SaveWeights はModelWeightsをJSONファイルに保存する。既存のファイルは上書きされる。
//
// 使用例:
//
//	w, _ := lr.ExportWeights()
//	err := model.SaveWeights(w, filepath.Join(dir, "model.json"))
func SaveWeights(weights *ModelWeights, filename string) (err error) {
	file, err := os.Create(filename)
	if err != nil {
		return errors.NewPersistenceError("create", filename, err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = errors.NewPersistenceError("close", filename, cerr)
		}
	}()

	if err := WriteWeights(weights, file); err != nil {
		return errors.NewPersistenceError("write", filename, err)
	}
	return nil
}

// LoadWeights はJSONファイルからModelWeightsを読み込み、検証する
func LoadWeights(filename string) (*ModelWeights, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, errors.NewPersistenceError("open", filename, err)
	}
	defer func() { _ = file.Close() }()

	return ReadWeights(file)
}

// WriteWeights はModelWeightsをインデント付きJSONでWriterに書き出す
func WriteWeights(weights *ModelWeights, w io.Writer) error {
	if err := weights.Validate(); err != nil {
		return err
	}
	data, err := weights.ToJSON()
	if err != nil {
		return errors.Wrap(err, "failed to encode weights")
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return errors.Wrap(err, "failed to write weights")
	}
	return nil
}

// ReadWeights はReaderからModelWeightsを読み込み、検証する
func ReadWeights(r io.Reader) (*ModelWeights, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read weights")
	}
	var weights ModelWeights
	if err := weights.FromJSON(data); err != nil {
		return nil, errors.Wrap(err, "failed to decode weights")
	}
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	return &weights, nil
}
