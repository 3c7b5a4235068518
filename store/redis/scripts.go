package redis

import goredis "github.com/redis/go-redis/v9"

// Every script takes the key prefix as ARGV[1]. Keys are derived inside the
// script; the hash-tagged prefix keeps them in the slot of KEYS[1].
const luaPrelude = `
local prefix = ARGV[1]
local function jobkey(id) return prefix .. 'job:' .. id end
local function deadkey(id) return prefix .. 'dead:' .. id end
local function schedkey(q, t) return prefix .. 'scheduled:' .. q .. ':' .. t end
local function readykey(q, t) return prefix .. 'ready:' .. q .. ':' .. t end
local function leasedkey(q) return prefix .. 'leased:' .. q end
local alljobs = prefix .. 'jobs'
local function queuejobs(q) return prefix .. 'jobs:' .. q end
local alldead = prefix .. 'dlq'
local function queuedead(q) return prefix .. 'dlq:' .. q end
local queues = prefix .. 'queues'

local function index(q, member)
  redis.call('ZADD', alljobs, 0, member)
  redis.call('ZADD', queuejobs(q), 0, member)
  redis.call('SADD', queues, q)
end

local function unindex(q, member)
  redis.call('ZREM', alljobs, member)
  redis.call('ZREM', queuejobs(q), member)
end

local function hash(key)
  local flat = redis.call('HGETALL', key)
  local h = {}
  for i = 1, #flat, 2 do h[flat[i]] = flat[i + 1] end
  return h
end
`

// insertScript: ARGV id, queue, type, payload, retry_count, priority,
// scheduled_at, scheduled_ms, enqueued_at.
var insertScript = goredis.NewScript(luaPrelude + `
local id = ARGV[2]
if redis.call('EXISTS', jobkey(id)) == 1 or redis.call('EXISTS', deadkey(id)) == 1 then
  return 'EXISTS'
end
local q, t = ARGV[3], ARGV[4]
redis.call('HSET', jobkey(id),
  'queue', q, 'job_type', t, 'payload', ARGV[5], 'retry_count', ARGV[6],
  'priority', ARGV[7], 'scheduled_at', ARGV[8], 'scheduled_ms', ARGV[9],
  'enqueued_at', ARGV[10])
redis.call('ZADD', schedkey(q, t), ARGV[9], id)
index(q, ARGV[10] .. ':' .. id)
return 'OK'
`)

// claimScript: ARGV queue, now, now_ms, types...
//
// Every due id moves from scheduled to ready; the best ready member across
// the requested types is leased. Ready members order by -priority, then by
// "<enqueued_at>:<id>" lexically. A ready member whose scheduled_at is after
// now (a caller clock behind the one that promoted it) is skipped, so the
// ready set is paged until a due member turns up.
var claimScript = goredis.NewScript(luaPrelude + `
local q, now, nowms = ARGV[2], ARGV[3], ARGV[4]
local best, bestscore, bestmember, besttype
for i = 5, #ARGV do
  local t = ARGV[i]
  local sk, rk = schedkey(q, t), readykey(q, t)
  for _, id in ipairs(redis.call('ZRANGEBYSCORE', sk, '-inf', nowms)) do
    local f = redis.call('HMGET', jobkey(id), 'scheduled_at', 'enqueued_at', 'priority')
    if not f[1] then
      redis.call('ZREM', sk, id)
    elseif f[1] <= now then
      redis.call('ZREM', sk, id)
      redis.call('ZADD', rk, -tonumber(f[3]), f[2] .. ':' .. id)
    end
  end
  local offset, found = 0, false
  repeat
    local cands = redis.call('ZRANGE', rk, offset, offset + 99, 'WITHSCORES')
    local removed = 0
    for j = 1, #cands, 2 do
      local member, score = cands[j], tonumber(cands[j + 1])
      local id = string.sub(member, 22)
      local sa = redis.call('HGET', jobkey(id), 'scheduled_at')
      if not sa then
        redis.call('ZREM', rk, member)
        removed = removed + 1
      elseif sa <= now then
        if best == nil or score < bestscore or (score == bestscore and member < bestmember) then
          best, bestscore, bestmember, besttype = id, score, member, t
        end
        found = true
        break
      end
    end
    offset = offset + 100 - removed
  until found or #cands < 200
end
if best == nil then return false end
redis.call('ZREM', readykey(q, besttype), bestmember)
local k = jobkey(best)
redis.call('HSET', k, 'leased_at', now)
redis.call('HINCRBY', k, 'retry_count', 1)
redis.call('ZADD', leasedkey(q), nowms, best)
local reply = redis.call('HGETALL', k)
reply[#reply + 1] = 'id'
reply[#reply + 1] = best
return reply
`)

// completeScript: ARGV id, leased_at.
var completeScript = goredis.NewScript(luaPrelude + `
local id = ARGV[2]
local k = jobkey(id)
local f = redis.call('HMGET', k, 'leased_at', 'queue', 'enqueued_at')
if not f[1] or f[1] ~= ARGV[3] then return 'LOST' end
redis.call('DEL', k)
redis.call('ZREM', leasedkey(f[2]), id)
unindex(f[2], f[3] .. ':' .. id)
return 'OK'
`)

// releaseScript: ARGV id, leased_at.
var releaseScript = goredis.NewScript(luaPrelude + `
local id = ARGV[2]
local k = jobkey(id)
local f = redis.call('HMGET', k, 'leased_at', 'queue', 'job_type', 'scheduled_ms')
if not f[1] or f[1] ~= ARGV[3] then return 'LOST' end
redis.call('HDEL', k, 'leased_at')
redis.call('ZREM', leasedkey(f[2]), id)
redis.call('ZADD', schedkey(f[2], f[3]), f[4], id)
return 'OK'
`)

// removeWaitingScript: ARGV id, job_type ('' matches any type).
// Returns the deleted hash.
var removeWaitingScript = goredis.NewScript(luaPrelude + `
local id, want = ARGV[2], ARGV[3]
local k = jobkey(id)
local h = hash(k)
if h['queue'] == nil or h['leased_at'] ~= nil then return 'NOTFOUND' end
if want ~= '' and h['job_type'] ~= want then return 'NOTFOUND' end
local member = h['enqueued_at'] .. ':' .. id
redis.call('ZREM', schedkey(h['queue'], h['job_type']), id)
redis.call('ZREM', readykey(h['queue'], h['job_type']), member)
unindex(h['queue'], member)
redis.call('DEL', k)
local flat = {}
for f, v in pairs(h) do
  flat[#flat + 1] = f
  flat[#flat + 1] = v
end
return flat
`)

// reapScript: ARGV queue, cutoff, cutoff_ms.
var reapScript = goredis.NewScript(luaPrelude + `
local q, cutoff = ARGV[2], ARGV[3]
local lk = leasedkey(q)
local n = 0
for _, id in ipairs(redis.call('ZRANGEBYSCORE', lk, '-inf', ARGV[4])) do
  local k = jobkey(id)
  local f = redis.call('HMGET', k, 'leased_at', 'job_type', 'scheduled_ms')
  if not f[1] then
    redis.call('ZREM', lk, id)
  elseif f[1] < cutoff then
    redis.call('HDEL', k, 'leased_at')
    redis.call('ZREM', lk, id)
    redis.call('ZADD', schedkey(q, f[2]), f[3], id)
    n = n + 1
  end
end
return n
`)

// deadLetterScript: ARGV id, leased_at, reason, failed_at.
var deadLetterScript = goredis.NewScript(luaPrelude + `
local id = ARGV[2]
local k, d = jobkey(id), deadkey(id)
local h = hash(k)
if h['leased_at'] == nil or h['leased_at'] ~= ARGV[3] then return 'LOST' end
if redis.call('EXISTS', d) == 1 then return 'EXISTS' end
local q = h['queue']
redis.call('HSET', d,
  'queue', q, 'job_type', h['job_type'], 'payload', h['payload'],
  'retry_count', h['retry_count'], 'priority', h['priority'],
  'scheduled_at', h['scheduled_at'], 'enqueued_at', h['enqueued_at'],
  'reason', ARGV[4], 'failed_at', ARGV[5])
local dm = ARGV[5] .. ':' .. id
redis.call('ZADD', alldead, 0, dm)
redis.call('ZADD', queuedead(q), 0, dm)
redis.call('DEL', k)
redis.call('ZREM', leasedkey(q), id)
unindex(q, h['enqueued_at'] .. ':' .. id)
return 'OK'
`)

// requeueScript: ARGV id, scheduled_at, scheduled_ms.
var requeueScript = goredis.NewScript(luaPrelude + `
local id = ARGV[2]
local k, d = jobkey(id), deadkey(id)
local h = hash(d)
if h['queue'] == nil then return 'NOTFOUND' end
if redis.call('EXISTS', k) == 1 then return 'EXISTS' end
local q, t = h['queue'], h['job_type']
redis.call('HSET', k,
  'queue', q, 'job_type', t, 'payload', h['payload'], 'retry_count', 0,
  'priority', h['priority'], 'scheduled_at', ARGV[3], 'scheduled_ms', ARGV[4],
  'enqueued_at', h['enqueued_at'])
redis.call('ZADD', schedkey(q, t), ARGV[4], id)
index(q, h['enqueued_at'] .. ':' .. id)
local dm = h['failed_at'] .. ':' .. id
redis.call('DEL', d)
redis.call('ZREM', alldead, dm)
redis.call('ZREM', queuedead(q), dm)
return redis.call('HGETALL', k)
`)

// purgeScript: ARGV before.
var purgeScript = goredis.NewScript(luaPrelude + `
local members = redis.call('ZRANGEBYLEX', alldead, '-', '(' .. ARGV[2])
for _, m in ipairs(members) do
  local id = string.sub(m, 22)
  local q = redis.call('HGET', deadkey(id), 'queue')
  redis.call('DEL', deadkey(id))
  redis.call('ZREM', alldead, m)
  if q then redis.call('ZREM', queuedead(q), m) end
end
return #members
`)

var allScripts = []*goredis.Script{
	insertScript, claimScript, completeScript, releaseScript,
	removeWaitingScript, reapScript, deadLetterScript, requeueScript, purgeScript,
}
