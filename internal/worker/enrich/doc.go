// Package enrich は取り込んだコンテンツのエンリッチジョブを提供する。
package enrich

// JobName はスケジューラに登録するジョブ名。
const JobName = "enrich_items"
