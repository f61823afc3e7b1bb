package tissue

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/hitoshi/checkinlog/internal/model"
)

// validate はリクエスト前のクライアント側検証に使うバリデータ。
// フィールド名はJSONタグ名で報告する。
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// pageQuery はチェックイン一覧のページング条件。
type pageQuery struct {
	Page    int `json:"page" validate:"min=1"`
	PerPage int `json:"per_page" validate:"min=10,max=100"`
}

// validatePageQuery はページング条件を検証する。上流APIの範囲外は通信前に拒否する。
func validatePageQuery(page, perPage int) error {
	return toValidationError(validate.Struct(pageQuery{Page: page, PerPage: perPage}))
}

// validatePayload はチェックイン作成・更新のペイロードを検証する。
func validatePayload(payload model.CheckinPayload) error {
	return toValidationError(validate.Struct(payload))
}

// toValidationError はvalidatorのエラーを最初の違反フィールドのValidationErrorに変換する。
func toValidationError(err error) error {
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return model.NewValidationError("", err.Error())
	}

	fe := verrs[0]
	return model.NewValidationError(fe.Field(), validationMessage(fe))
}

// validationMessage はバリデーションタグをユーザー向けメッセージに変換する。
func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "必須項目です"
	case "min":
		if fe.Kind() == reflect.String {
			return fe.Param() + "文字以上で入力してください"
		}
		return fe.Param() + "以上を指定してください"
	case "max":
		if fe.Kind() == reflect.String {
			return fe.Param() + "文字以内で入力してください"
		}
		return fe.Param() + "以下を指定してください"
	case "http_url", "url":
		return "http:// または https:// で始まるURLを入力してください"
	default:
		return "不正な値です"
	}
}
